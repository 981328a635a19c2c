package core

import "fmt"

// Validate checks the cross-structure invariants that must hold at every
// quiescent point. It is meant for tests and debug assertions.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	placed := make(map[uint64]int)
	for name, t := range e.tubes {
		t.ready.Ascend(func(j *Job) bool {
			placed[j.ID]++
			if j.State != Ready || j.Tube != name {
				placed[j.ID] = -1000
			}
			return true
		})
		t.delay.Ascend(func(j *Job) bool {
			placed[j.ID]++
			if j.State != Delayed || j.Tube != name {
				placed[j.ID] = -1000
			}
			return true
		})
		for _, j := range t.buried {
			placed[j.ID]++
			if j.State != Buried || j.Tube != name {
				placed[j.ID] = -1000
			}
		}
	}

	for id, j := range e.jobs {
		want := 1
		if j.State == Reserved {
			want = 0
		}
		if placed[id] != want {
			return fmt.Errorf("job %d state %s placed in %d containers, want %d", id, j.State, placed[id], want)
		}
		if _, ok := e.tubes[j.Tube]; !ok {
			return fmt.Errorf("job %d names missing tube %q", id, j.Tube)
		}
		if id > e.idCounter {
			return fmt.Errorf("job %d exceeds id counter %d", id, e.idCounter)
		}
		if j.State == Reserved {
			s := j.Reserver
			if s == nil {
				return fmt.Errorf("reserved job %d has no reserver", id)
			}
			if _, ok := s.ReservedJobs[id]; !ok {
				return fmt.Errorf("reserved job %d missing from session %s", id, s.ID)
			}
		}
	}
	for id := range placed {
		if _, ok := e.jobs[id]; !ok {
			return fmt.Errorf("container holds job %d absent from jobs map", id)
		}
	}

	for _, s := range e.sessions {
		if _, ok := e.tubes[s.Use]; !ok {
			return fmt.Errorf("session %s uses missing tube %q", s.ID, s.Use)
		}
		for name := range s.Watch {
			t, ok := e.tubes[name]
			if !ok {
				return fmt.Errorf("session %s watches missing tube %q", s.ID, name)
			}
			if s.State == SessionWaiting && !contains(t.waiting, s.ID) {
				return fmt.Errorf("waiting session %s absent from tube %q waiting list", s.ID, name)
			}
		}
		if s.State == SessionWorking && len(s.ReservedJobs) == 0 {
			return fmt.Errorf("working session %s holds no reservations", s.ID)
		}
		for id := range s.ReservedJobs {
			j, ok := e.jobs[id]
			if !ok || j.State != Reserved || j.Reserver != s {
				return fmt.Errorf("session %s claims job %d it does not reserve", s.ID, id)
			}
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
