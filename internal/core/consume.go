package core

import "context"

// Reserve blocks until a watched tube yields a job, the timeout elapses, or
// ctx is cancelled. timeoutSecs < 0 blocks indefinitely; timeoutSecs == 0
// is a non-blocking poll that returns ErrTimedOut when nothing is ready.
//
// The wait happens between engine transactions: the session is parked on
// every watched tube's waiting list and resolved by whichever transaction
// commits first — a dispatch or the reserve-timeout sweep.
func (e *Engine) Reserve(ctx context.Context, sessionID string, timeoutSecs int64, nowMs int64) (*Job, error) {
	e.mu.Lock()
	s, err := e.session(sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if timeoutSecs < 0 {
		e.count("reserve")
	} else {
		e.count("reserve-with-timeout")
	}
	now := nowOr(nowMs)
	if j := e.topReadyLocked(s); j != nil {
		e.assignLocked(s, j, now)
		out := clone(j)
		e.mu.Unlock()
		return out, nil
	}
	if timeoutSecs == 0 {
		e.mu.Unlock()
		return nil, ErrTimedOut
	}

	ch := make(chan reserveOutcome, 1)
	s.pending = ch
	s.State = SessionWaiting
	s.Incoming = nil
	if timeoutSecs > 0 {
		s.DeadlineAt = now + timeoutSecs*1000
	} else {
		s.DeadlineAt = 0
	}
	for name := range s.Watch {
		e.tube(name).enqueueWaiting(s.ID)
	}
	e.mu.Unlock()

	select {
	case out := <-ch:
		if out.timedOut {
			return nil, ErrTimedOut
		}
		return out.job, nil
	case <-ctx.Done():
		e.mu.Lock()
		select {
		case out := <-ch:
			// A dispatch or timeout committed before the cancellation took
			// the lock; honor it.
			e.mu.Unlock()
			if out.timedOut {
				return nil, ErrTimedOut
			}
			return out.job, nil
		default:
			e.cancelWaitLocked(s)
			e.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// Delete removes a job. Reserved jobs are deletable only by their reserver;
// delayed jobs are not deletable at all; both report ErrNotFound, matching
// the observable beanstalkd behavior.
func (e *Engine) Delete(sessionID string, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	e.count("delete")
	j, ok := e.jobs[id]
	if !ok {
		return ErrNotFound
	}
	switch j.State {
	case Reserved:
		if j.Reserver != s {
			return ErrNotFound
		}
		e.releaseReservationLocked(j)
	case Ready:
		e.tube(j.Tube).ready.Delete(j)
	case Buried:
		e.tube(j.Tube).removeBuried(j)
	default:
		return ErrNotFound
	}
	j.State = Invalid
	delete(e.jobs, id)
	e.journalDelete(j)
	return nil
}

// Release puts a reserved job back with a new priority, ready immediately
// or after a delay. Only the reserver may release.
func (e *Engine) Release(sessionID string, id uint64, priority uint32, delaySecs uint32, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.reservedByLocked(sessionID, "release", id)
	if err != nil {
		return err
	}
	now := nowOr(nowMs)
	e.releaseReservationLocked(j)
	j.Priority = priority
	j.Delay = delaySecs
	j.Releases++
	if delaySecs > 0 {
		e.enterDelayedLocked(j, now+int64(delaySecs)*1000)
	} else {
		e.enterReadyLocked(j, now)
	}
	e.journalDelta(j)
	return nil
}

// Bury sets a reserved job aside with a new priority for out-of-band
// inspection. Only the reserver may bury.
func (e *Engine) Bury(sessionID string, id uint64, priority uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.reservedByLocked(sessionID, "bury", id)
	if err != nil {
		return err
	}
	e.releaseReservationLocked(j)
	j.Priority = priority
	j.Buries++
	j.State = Buried
	j.DeadlineAt = 0
	t := e.tube(j.Tube)
	t.buried = append(t.buried, j)
	e.journalDelta(j)
	return nil
}

// Touch resets a reservation's deadline to now plus the job's TTR. Only the
// reserver may touch.
func (e *Engine) Touch(sessionID string, id uint64, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.reservedByLocked(sessionID, "touch", id)
	if err != nil {
		return err
	}
	j.DeadlineAt = nowOr(nowMs) + int64(j.TTR)*1000
	e.journalDelta(j)
	return nil
}

// reservedByLocked resolves a job that must be reserved by the calling
// session; any other situation is ErrNotFound.
func (e *Engine) reservedByLocked(sessionID, cmd string, id uint64) (*Job, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	e.count(cmd)
	j, ok := e.jobs[id]
	if !ok || j.State != Reserved || j.Reserver != s {
		return nil, ErrNotFound
	}
	return j, nil
}

// Watch adds a tube to the session's watch set, creating it lazily, and
// returns the new watch count.
func (e *Engine) Watch(sessionID, tube string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return 0, err
	}
	e.count("watch")
	e.tube(tube)
	s.Watch[tube] = struct{}{}
	return len(s.Watch), nil
}

// Ignore removes a tube from the watch set. Removing the last watched tube
// fails with ErrNotIgnored and leaves the set unchanged.
func (e *Engine) Ignore(sessionID, tube string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return 0, err
	}
	e.count("ignore")
	if _, ok := s.Watch[tube]; ok {
		if len(s.Watch) == 1 {
			return 0, ErrNotIgnored
		}
		delete(s.Watch, tube)
		if t, ok := e.tubes[tube]; ok {
			t.removeWaiting(s.ID)
		}
	}
	return len(s.Watch), nil
}
