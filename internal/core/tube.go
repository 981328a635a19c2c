package core

import "github.com/google/btree"

// DefaultTube exists from startup and is every session's initial used and
// watched tube.
const DefaultTube = "default"

const btreeDegree = 16

// Tube is a named isolated queue. Tubes are created lazily by use, watch,
// put, or recovery, and are never destroyed.
type Tube struct {
	Name string

	ready  *btree.BTreeG[*Job] // state=ready, ordered by (priority, id)
	delay  *btree.BTreeG[*Job] // state=delayed, ordered by (deadline, id)
	buried []*Job              // state=buried, FIFO

	// waiting holds ids of sessions blocked on reserve while this tube is in
	// their watch set, in enqueue order. Entries are resolved through the
	// sessions map at dispatch time; stale ids are skipped.
	waiting []string

	Paused          bool
	PauseDeadlineAt int64 // ms since epoch when Paused reverts
	Pauses          uint32

	TotalJobs uint64
}

func newTube(name string) *Tube {
	return &Tube{
		Name:  name,
		ready: btree.NewG(btreeDegree, readyLess),
		delay: btree.NewG(btreeDegree, delayLess),
	}
}

// peekReady returns the most urgent ready job, or nil.
func (t *Tube) peekReady() *Job {
	j, ok := t.ready.Min()
	if !ok {
		return nil
	}
	return j
}

// peekDelayed returns the delayed job with the nearest deadline, or nil.
func (t *Tube) peekDelayed() *Job {
	j, ok := t.delay.Min()
	if !ok {
		return nil
	}
	return j
}

// peekBuried returns the oldest buried job, or nil.
func (t *Tube) peekBuried() *Job {
	if len(t.buried) == 0 {
		return nil
	}
	return t.buried[0]
}

// removeBuried unlinks j from the buried FIFO.
func (t *Tube) removeBuried(j *Job) bool {
	for i, b := range t.buried {
		if b == j {
			t.buried = append(t.buried[:i], t.buried[i+1:]...)
			return true
		}
	}
	return false
}

// enqueueWaiting appends a session id to the waiting FIFO.
func (t *Tube) enqueueWaiting(id string) {
	t.waiting = append(t.waiting, id)
}

// removeWaiting drops every occurrence of a session id from the waiting FIFO.
func (t *Tube) removeWaiting(id string) {
	out := t.waiting[:0]
	for _, w := range t.waiting {
		if w != id {
			out = append(out, w)
		}
	}
	t.waiting = out
}

// urgentCount counts ready jobs below the urgent priority threshold.
func (t *Tube) urgentCount() int {
	n := 0
	t.ready.Ascend(func(j *Job) bool {
		if !j.isUrgent() {
			// Ready set is priority-ordered, so the first non-urgent job
			// ends the count.
			return false
		}
		n++
		return true
	})
	return n
}
