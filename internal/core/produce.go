package core

// Put creates a job in the session's used tube. The job starts delayed when
// delay > 0, otherwise ready. Returns ErrDraining while drain mode is on.
func (e *Engine) Put(sessionID string, priority uint32, delaySecs, ttrSecs uint32, body []byte, nowMs int64) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	e.count("put")
	if e.drain {
		return nil, ErrDraining
	}
	now := nowOr(nowMs)
	e.idCounter++
	j := &Job{
		ID:        e.idCounter,
		Priority:  priority,
		Delay:     delaySecs,
		TTR:       ttrSecs,
		CreatedAt: now,
		Tube:      s.Use,
		Body:      body,
	}
	e.jobs[j.ID] = j
	t := e.tube(s.Use)
	t.TotalJobs++
	e.totalJobs++
	if delaySecs > 0 {
		e.enterDelayedLocked(j, now+int64(delaySecs)*1000)
	} else {
		e.enterReadyLocked(j, now)
	}
	if err := e.journalFull(j); err != nil {
		return nil, err
	}
	if e.obs != nil {
		e.obs.JobInserted(j.Tube)
	}
	return clone(j), nil
}

// Use switches the session's used tube, creating it lazily.
func (e *Engine) Use(sessionID, tube string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}
	e.count("use")
	e.tube(tube)
	s.Use = tube
	return tube, nil
}

// Peek returns the job with the given id regardless of state.
func (e *Engine) Peek(sessionID string, id uint64) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.session(sessionID); err != nil {
		return nil, err
	}
	e.count("peek")
	j, ok := e.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(j), nil
}

// PeekReady returns the head of the used tube's ready set.
func (e *Engine) PeekReady(sessionID string) (*Job, error) {
	return e.peekContainer(sessionID, "peek-ready", (*Tube).peekReady)
}

// PeekDelayed returns the delayed job of the used tube with the nearest
// deadline.
func (e *Engine) PeekDelayed(sessionID string) (*Job, error) {
	return e.peekContainer(sessionID, "peek-delayed", (*Tube).peekDelayed)
}

// PeekBuried returns the oldest buried job of the used tube.
func (e *Engine) PeekBuried(sessionID string) (*Job, error) {
	return e.peekContainer(sessionID, "peek-buried", (*Tube).peekBuried)
}

func (e *Engine) peekContainer(sessionID, cmd string, head func(*Tube) *Job) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	e.count(cmd)
	j := head(e.tube(s.Use))
	if j == nil {
		return nil, ErrNotFound
	}
	return clone(j), nil
}

// Kick promotes up to bound jobs in the session's used tube. Buried jobs
// are kicked while any exist; only when the buried list is empty does a
// kick touch delayed jobs — never both in one call.
func (e *Engine) Kick(sessionID string, bound int, nowMs int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return 0, err
	}
	e.count("kick")
	now := nowOr(nowMs)
	t := e.tube(s.Use)
	kicked := 0
	if len(t.buried) > 0 {
		for kicked < bound && len(t.buried) > 0 {
			j := t.buried[0]
			t.buried = t.buried[1:]
			j.Kicks++
			e.enterReadyLocked(j, now)
			e.journalDelta(j)
			kicked++
		}
		return kicked, nil
	}
	for kicked < bound {
		j := t.peekDelayed()
		if j == nil {
			break
		}
		t.delay.Delete(j)
		j.Kicks++
		e.enterReadyLocked(j, now)
		e.journalDelta(j)
		kicked++
	}
	return kicked, nil
}

// PauseTube pauses the named tube for delaySecs seconds; while paused the
// tube contributes no jobs to any reserve.
func (e *Engine) PauseTube(name string, delaySecs uint32, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count("pause-tube")
	t, ok := e.tubes[name]
	if !ok {
		return ErrNotFound
	}
	now := nowOr(nowMs)
	t.Paused = true
	t.PauseDeadlineAt = now + int64(delaySecs)*1000
	t.Pauses++
	return nil
}
