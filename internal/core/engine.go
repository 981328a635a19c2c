package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/sunng87/clojalk/internal/wal"
)

// Options configure an Engine.
type Options struct {
	// WAL, when non-nil, journals every state-creating or -mutating
	// transition. Restore does not append to it; Recover has already
	// rewritten a full record per recovered job.
	WAL *wal.Log

	// Observer receives metric callbacks; nil disables them.
	Observer Observer

	// Drain starts the engine in drain mode (puts rejected).
	Drain bool
}

// Engine owns all jobs, tubes, and sessions and serializes every command
// and sweep under one mutex.
type Engine struct {
	mu sync.Mutex

	jobs     map[uint64]*Job
	tubes    map[string]*Tube
	sessions map[string]*Session

	idCounter uint64

	drain       bool
	cmds        map[string]uint64
	jobTimeouts uint64
	totalJobs   uint64
	startedAt   time.Time

	wal *wal.Log
	obs Observer

	sweepStop chan struct{}
}

// New creates an engine with the default tube.
func New(opts Options) *Engine {
	e := &Engine{
		jobs:      make(map[uint64]*Job),
		tubes:     make(map[string]*Tube),
		sessions:  make(map[string]*Session),
		drain:     opts.Drain,
		cmds:      make(map[string]uint64),
		startedAt: time.Now(),
		wal:       opts.WAL,
		obs:       opts.Observer,
	}
	e.tubes[DefaultTube] = newTube(DefaultTube)
	return e
}

// nowOr resolves an explicit timestamp; nowMs <= 0 means the wall clock.
func nowOr(nowMs int64) int64 {
	if nowMs > 0 {
		return nowMs
	}
	return time.Now().UnixMilli()
}

// count bumps a cmd-<name> counter and notifies the observer. Callers hold
// the engine lock.
func (e *Engine) count(name string) {
	e.cmds[name]++
	if e.obs != nil {
		e.obs.Command(name)
	}
}

// tube returns the named tube, creating it lazily. Callers hold the lock.
func (e *Engine) tube(name string) *Tube {
	t, ok := e.tubes[name]
	if !ok {
		t = newTube(name)
		e.tubes[name] = t
	}
	return t
}

func (e *Engine) session(id string) (*Session, error) {
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// OpenSession registers a session under the given id. An existing session
// with the same id is replaced.
func (e *Engine) OpenSession(id string, typ SessionType) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := newSession(id, typ)
	e.sessions[id] = s
	return s
}

// CloseSession removes a session: it is taken off every waiting list, its
// reserved jobs go back to ready, and any pending delivery is discarded.
func (e *Engine) CloseSession(id string, nowMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return
	}
	now := nowOr(nowMs)
	e.cancelWaitLocked(s)
	for jobID := range s.ReservedJobs {
		j, ok := e.jobs[jobID]
		if !ok || j.State != Reserved {
			continue
		}
		j.Reserver = nil
		e.enterReadyLocked(j, now)
		e.journalDelta(j)
	}
	s.ReservedJobs = make(map[uint64]struct{})
	s.Incoming = nil
	delete(e.sessions, id)
}

// SetDrain toggles drain mode.
func (e *Engine) SetDrain(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drain = on
}

// Draining reports whether drain mode is on.
func (e *Engine) Draining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drain
}

// ToggleDrain flips drain mode and returns the new value.
func (e *Engine) ToggleDrain() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drain = !e.drain
	return e.drain
}

// SetSessionType reclassifies a session. The protocol layer calls this when
// a connection first issues a worker verb; the type is informational only.
func (e *Engine) SetSessionType(id string, typ SessionType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[id]; ok {
		s.Type = typ
	}
}

// Restore rebuilds the model from recovered journal records and sets the id
// counter to the highest recovered id, so new ids start past every
// recovered one. It must run before the engine serves commands.
func (e *Engine) Restore(records map[uint64]wal.Record) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range records {
		j := &Job{
			ID:         rec.ID,
			Priority:   rec.Priority,
			Delay:      rec.Delay,
			TTR:        rec.TTR,
			CreatedAt:  rec.CreatedAt,
			DeadlineAt: rec.DeadlineAt,
			State:      State(rec.State),
			Tube:       rec.Tube,
			Body:       rec.Body,
			Reserves:   rec.Reserves,
			Timeouts:   rec.Timeouts,
			Releases:   rec.Releases,
			Buries:     rec.Buries,
			Kicks:      rec.Kicks,
		}
		if j.State == Reserved {
			// Recover() already reduces reserved to ready; keep the engine
			// safe against hand-built record sets too.
			j.State = Ready
			j.DeadlineAt = 0
		}
		t := e.tube(j.Tube)
		switch j.State {
		case Ready:
			t.ready.ReplaceOrInsert(j)
		case Delayed:
			t.delay.ReplaceOrInsert(j)
		case Buried:
			t.buried = append(t.buried, j)
		default:
			continue
		}
		e.jobs[j.ID] = j
		t.TotalJobs++
		e.totalJobs++
		if j.ID > e.idCounter {
			e.idCounter = j.ID
		}
	}
	return len(e.jobs)
}

// journalFull writes a full record for j; the first record of every job.
func (e *Engine) journalFull(j *Job) error {
	if e.wal == nil {
		return nil
	}
	if err := e.wal.Append(e.record(j, true)); err != nil {
		return fmt.Errorf("journal job %d: %w", j.ID, err)
	}
	return nil
}

// journalDelta writes a delta record for j. Sweep paths tolerate append
// failures (the mutation stands; the on-disk image lags by one record).
func (e *Engine) journalDelta(j *Job) {
	if e.wal == nil {
		return
	}
	_ = e.wal.Append(e.record(j, false))
}

// journalDelete writes the tombstone delta for a deleted job id.
func (e *Engine) journalDelete(j *Job) {
	if e.wal == nil {
		return
	}
	rec := e.record(j, false)
	rec.State = wal.StateInvalid
	_ = e.wal.Append(rec)
}

func (e *Engine) record(j *Job, full bool) wal.Record {
	return wal.Record{
		ID:         j.ID,
		Delay:      j.Delay,
		TTR:        j.TTR,
		Priority:   j.Priority,
		CreatedAt:  j.CreatedAt,
		DeadlineAt: j.DeadlineAt,
		State:      uint16(j.State),
		Reserves:   j.Reserves,
		Timeouts:   j.Timeouts,
		Releases:   j.Releases,
		Buries:     j.Buries,
		Kicks:      j.Kicks,
		Tube:       j.Tube,
		Body:       j.Body,
		Full:       full,
	}
}

// clone returns a snapshot of j safe to hand outside the engine lock.
func clone(j *Job) *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Reserver = nil
	return &c
}
