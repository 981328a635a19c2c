package core

// topReadyLocked performs the k-way selection for a session: among the
// heads of every watched, unpaused tube, the overall lowest (priority, id).
func (e *Engine) topReadyLocked(s *Session) *Job {
	var best *Job
	for name := range s.Watch {
		t, ok := e.tubes[name]
		if !ok || t.Paused {
			continue
		}
		head := t.peekReady()
		if head == nil {
			continue
		}
		if best == nil || readyLess(head, best) {
			best = head
		}
	}
	return best
}

// enterReadyLocked moves j into its tube's ready set and dispatches to a
// waiting session if one is queued and the tube is not paused.
func (e *Engine) enterReadyLocked(j *Job, nowMs int64) {
	t := e.tube(j.Tube)
	j.State = Ready
	j.DeadlineAt = 0
	t.ready.ReplaceOrInsert(j)
	if !t.Paused {
		e.dispatchLocked(t, nowMs)
	}
}

// enterDelayedLocked moves j into its tube's delay set with the given
// wake-up deadline.
func (e *Engine) enterDelayedLocked(j *Job, deadlineMs int64) {
	t := e.tube(j.Tube)
	j.State = Delayed
	j.DeadlineAt = deadlineMs
	t.delay.ReplaceOrInsert(j)
}

// dispatchLocked pairs waiting sessions with ready jobs in order until one
// side empties. It is the single wake-up path: put, delay expiry, release,
// kick, TTR expiry, session close, and pause expiry all funnel through it,
// which preserves the invariant that no session waits on a tube holding a
// ready, unpaused job.
func (e *Engine) dispatchLocked(t *Tube, nowMs int64) {
	for {
		j := t.peekReady()
		if j == nil {
			return
		}
		s := e.popWaitingLocked(t)
		if s == nil {
			return
		}
		e.assignLocked(s, j, nowMs)
		if s.pending != nil {
			s.pending <- reserveOutcome{job: clone(j)}
			s.pending = nil
		}
	}
}

// popWaitingLocked pops the first live waiting session off t's FIFO,
// skipping ids that no longer resolve to a session in the waiting state
// (closed connections, raced timeouts).
func (e *Engine) popWaitingLocked(t *Tube) *Session {
	for len(t.waiting) > 0 {
		id := t.waiting[0]
		t.waiting = t.waiting[1:]
		s, ok := e.sessions[id]
		if !ok || s.State != SessionWaiting || !s.watching(t.Name) {
			continue
		}
		return s
	}
	return nil
}

// assignLocked performs the reservation of j for s. The job leaves its
// ready set; the session leaves every waiting list.
func (e *Engine) assignLocked(s *Session, j *Job, nowMs int64) {
	t := e.tube(j.Tube)
	t.ready.Delete(j)
	j.State = Reserved
	j.Reserver = s
	j.Reserves++
	// A zero TTR reservation never expires; the sweep skips it.
	j.DeadlineAt = nowMs + int64(j.TTR)*1000
	s.ReservedJobs[j.ID] = struct{}{}
	s.Incoming = j
	e.leaveWaitingLocked(s)
	s.State = SessionWorking
	e.journalDelta(j)
}

// leaveWaitingLocked removes s from every watched tube's waiting list and
// clears its reserve deadline.
func (e *Engine) leaveWaitingLocked(s *Session) {
	for name := range s.Watch {
		if t, ok := e.tubes[name]; ok {
			t.removeWaiting(s.ID)
		}
	}
	s.DeadlineAt = 0
}

// cancelWaitLocked aborts an in-flight blocking reserve, if any.
func (e *Engine) cancelWaitLocked(s *Session) {
	if s.State == SessionWaiting {
		e.leaveWaitingLocked(s)
		s.State = SessionIdle
		if len(s.ReservedJobs) > 0 {
			s.State = SessionWorking
		}
	}
	s.pending = nil
}

// releaseReservationLocked detaches j from its reserver's bookkeeping.
func (e *Engine) releaseReservationLocked(j *Job) {
	s := j.Reserver
	j.Reserver = nil
	if s == nil {
		return
	}
	delete(s.ReservedJobs, j.ID)
	if s.Incoming == j {
		s.Incoming = nil
	}
	if len(s.ReservedJobs) == 0 && s.State == SessionWorking {
		s.State = SessionIdle
	}
}
