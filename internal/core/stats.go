package core

import (
	"sort"
	"time"
)

// JobStats is the stats-job snapshot.
type JobStats struct {
	ID       uint64 `yaml:"id" json:"id"`
	Tube     string `yaml:"tube" json:"tube"`
	State    string `yaml:"state" json:"state"`
	Priority uint32 `yaml:"pri" json:"pri"`
	Age      int64  `yaml:"age" json:"age"`
	Delay    uint32 `yaml:"delay" json:"delay"`
	TTR      uint32 `yaml:"ttr" json:"ttr"`
	TimeLeft int64  `yaml:"time-left" json:"time-left"`
	Reserves uint32 `yaml:"reserves" json:"reserves"`
	Timeouts uint32 `yaml:"timeouts" json:"timeouts"`
	Releases uint32 `yaml:"releases" json:"releases"`
	Buries   uint32 `yaml:"buries" json:"buries"`
	Kicks    uint32 `yaml:"kicks" json:"kicks"`
}

// TubeStats is the stats-tube snapshot.
type TubeStats struct {
	Name                string `yaml:"name" json:"name"`
	CurrentJobsUrgent   int    `yaml:"current-jobs-urgent" json:"current-jobs-urgent"`
	CurrentJobsReady    int    `yaml:"current-jobs-ready" json:"current-jobs-ready"`
	CurrentJobsReserved int    `yaml:"current-jobs-reserved" json:"current-jobs-reserved"`
	CurrentJobsDelayed  int    `yaml:"current-jobs-delayed" json:"current-jobs-delayed"`
	CurrentJobsBuried   int    `yaml:"current-jobs-buried" json:"current-jobs-buried"`
	TotalJobs           uint64 `yaml:"total-jobs" json:"total-jobs"`
	CurrentUsing        int    `yaml:"current-using" json:"current-using"`
	CurrentWatching     int    `yaml:"current-watching" json:"current-watching"`
	CurrentWaiting      int    `yaml:"current-waiting" json:"current-waiting"`
	CmdPauseTube        uint32 `yaml:"cmd-pause-tube" json:"cmd-pause-tube"`
	Pause               int64  `yaml:"pause" json:"pause"`
	PauseTimeLeft       int64  `yaml:"pause-time-left" json:"pause-time-left"`
}

// GlobalStats is the stats snapshot.
type GlobalStats struct {
	CurrentJobsUrgent   int `yaml:"current-jobs-urgent" json:"current-jobs-urgent"`
	CurrentJobsReady    int `yaml:"current-jobs-ready" json:"current-jobs-ready"`
	CurrentJobsReserved int `yaml:"current-jobs-reserved" json:"current-jobs-reserved"`
	CurrentJobsDelayed  int `yaml:"current-jobs-delayed" json:"current-jobs-delayed"`
	CurrentJobsBuried   int `yaml:"current-jobs-buried" json:"current-jobs-buried"`

	CmdPut              uint64 `yaml:"cmd-put" json:"cmd-put"`
	CmdPeek             uint64 `yaml:"cmd-peek" json:"cmd-peek"`
	CmdPeekReady        uint64 `yaml:"cmd-peek-ready" json:"cmd-peek-ready"`
	CmdPeekDelayed      uint64 `yaml:"cmd-peek-delayed" json:"cmd-peek-delayed"`
	CmdPeekBuried       uint64 `yaml:"cmd-peek-buried" json:"cmd-peek-buried"`
	CmdReserve          uint64 `yaml:"cmd-reserve" json:"cmd-reserve"`
	CmdReserveTimeout   uint64 `yaml:"cmd-reserve-with-timeout" json:"cmd-reserve-with-timeout"`
	CmdUse              uint64 `yaml:"cmd-use" json:"cmd-use"`
	CmdWatch            uint64 `yaml:"cmd-watch" json:"cmd-watch"`
	CmdIgnore           uint64 `yaml:"cmd-ignore" json:"cmd-ignore"`
	CmdDelete           uint64 `yaml:"cmd-delete" json:"cmd-delete"`
	CmdRelease          uint64 `yaml:"cmd-release" json:"cmd-release"`
	CmdBury             uint64 `yaml:"cmd-bury" json:"cmd-bury"`
	CmdKick             uint64 `yaml:"cmd-kick" json:"cmd-kick"`
	CmdTouch            uint64 `yaml:"cmd-touch" json:"cmd-touch"`
	CmdStats            uint64 `yaml:"cmd-stats" json:"cmd-stats"`
	CmdStatsJob         uint64 `yaml:"cmd-stats-job" json:"cmd-stats-job"`
	CmdStatsTube        uint64 `yaml:"cmd-stats-tube" json:"cmd-stats-tube"`
	CmdListTubes        uint64 `yaml:"cmd-list-tubes" json:"cmd-list-tubes"`
	CmdListTubeUsed     uint64 `yaml:"cmd-list-tube-used" json:"cmd-list-tube-used"`
	CmdListTubesWatched uint64 `yaml:"cmd-list-tubes-watched" json:"cmd-list-tubes-watched"`
	CmdPauseTube        uint64 `yaml:"cmd-pause-tube" json:"cmd-pause-tube"`

	JobTimeouts        uint64 `yaml:"job-timeouts" json:"job-timeouts"`
	TotalJobs          uint64 `yaml:"total-jobs" json:"total-jobs"`
	CurrentTubes       int    `yaml:"current-tubes" json:"current-tubes"`
	CurrentConnections int    `yaml:"current-connections" json:"current-connections"`
	CurrentProducers   int    `yaml:"current-producers" json:"current-producers"`
	CurrentWorkers     int    `yaml:"current-workers" json:"current-workers"`
	CurrentWaiting     int    `yaml:"current-waiting" json:"current-waiting"`
	Uptime             int64  `yaml:"uptime" json:"uptime"`
	DrainMode          bool   `yaml:"drain-mode" json:"drain-mode"`
}

// StatsJob returns the stats snapshot for one job.
func (e *Engine) StatsJob(sessionID string, id uint64, nowMs int64) (JobStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.session(sessionID); err != nil {
		return JobStats{}, err
	}
	e.count("stats-job")
	j, ok := e.jobs[id]
	if !ok {
		return JobStats{}, ErrNotFound
	}
	now := nowOr(nowMs)
	st := JobStats{
		ID:       j.ID,
		Tube:     j.Tube,
		State:    j.State.String(),
		Priority: j.Priority,
		Age:      (now - j.CreatedAt) / 1000,
		Delay:    j.Delay,
		TTR:      j.TTR,
		Reserves: j.Reserves,
		Timeouts: j.Timeouts,
		Releases: j.Releases,
		Buries:   j.Buries,
		Kicks:    j.Kicks,
	}
	if j.State == Delayed || j.State == Reserved {
		if left := (j.DeadlineAt - now) / 1000; left > 0 {
			st.TimeLeft = left
		}
	}
	return st, nil
}

// StatsTube returns the stats snapshot for one tube.
func (e *Engine) StatsTube(name string, nowMs int64) (TubeStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count("stats-tube")
	t, ok := e.tubes[name]
	if !ok {
		return TubeStats{}, ErrNotFound
	}
	now := nowOr(nowMs)
	st := TubeStats{
		Name:               t.Name,
		CurrentJobsUrgent:  t.urgentCount(),
		CurrentJobsReady:   t.ready.Len(),
		CurrentJobsDelayed: t.delay.Len(),
		CurrentJobsBuried:  len(t.buried),
		TotalJobs:          t.TotalJobs,
		CmdPauseTube:       t.Pauses,
	}
	for _, s := range e.sessions {
		if s.Use == t.Name {
			st.CurrentUsing++
		}
		if s.watching(t.Name) {
			st.CurrentWatching++
			if s.State == SessionWaiting {
				st.CurrentWaiting++
			}
		}
	}
	for _, j := range e.jobs {
		if j.Tube == t.Name && j.State == Reserved {
			st.CurrentJobsReserved++
		}
	}
	if t.Paused {
		st.Pause = 1
		if left := (t.PauseDeadlineAt - now) / 1000; left > 0 {
			st.PauseTimeLeft = left
		}
	}
	return st, nil
}

// Stats returns the global stats snapshot.
func (e *Engine) Stats(nowMs int64) GlobalStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count("stats")
	now := nowOr(nowMs)
	st := GlobalStats{
		CmdPut:              e.cmds["put"],
		CmdPeek:             e.cmds["peek"],
		CmdPeekReady:        e.cmds["peek-ready"],
		CmdPeekDelayed:      e.cmds["peek-delayed"],
		CmdPeekBuried:       e.cmds["peek-buried"],
		CmdReserve:          e.cmds["reserve"],
		CmdReserveTimeout:   e.cmds["reserve-with-timeout"],
		CmdUse:              e.cmds["use"],
		CmdWatch:            e.cmds["watch"],
		CmdIgnore:           e.cmds["ignore"],
		CmdDelete:           e.cmds["delete"],
		CmdRelease:          e.cmds["release"],
		CmdBury:             e.cmds["bury"],
		CmdKick:             e.cmds["kick"],
		CmdTouch:            e.cmds["touch"],
		CmdStats:            e.cmds["stats"],
		CmdStatsJob:         e.cmds["stats-job"],
		CmdStatsTube:        e.cmds["stats-tube"],
		CmdListTubes:        e.cmds["list-tubes"],
		CmdListTubeUsed:     e.cmds["list-tube-used"],
		CmdListTubesWatched: e.cmds["list-tubes-watched"],
		CmdPauseTube:        e.cmds["pause-tube"],
		JobTimeouts:         e.jobTimeouts,
		TotalJobs:           e.totalJobs,
		CurrentTubes:        len(e.tubes),
		CurrentConnections:  len(e.sessions),
		Uptime:              (now - e.startedAt.UnixMilli()) / 1000,
		DrainMode:           e.drain,
	}
	for _, j := range e.jobs {
		switch j.State {
		case Ready:
			st.CurrentJobsReady++
			if j.isUrgent() {
				st.CurrentJobsUrgent++
			}
		case Delayed:
			st.CurrentJobsDelayed++
		case Reserved:
			st.CurrentJobsReserved++
		case Buried:
			st.CurrentJobsBuried++
		}
	}
	for _, s := range e.sessions {
		if s.Type == Producer {
			st.CurrentProducers++
		} else {
			st.CurrentWorkers++
		}
		if s.State == SessionWaiting {
			st.CurrentWaiting++
		}
	}
	return st
}

// ListTubes returns all tube names, sorted.
func (e *Engine) ListTubes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count("list-tubes")
	names := make([]string, 0, len(e.tubes))
	for n := range e.tubes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListTubeUsed returns the session's used tube.
func (e *Engine) ListTubeUsed(sessionID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}
	e.count("list-tube-used")
	return s.Use, nil
}

// ListTubesWatched returns the session's watched tubes, sorted.
func (e *Engine) ListTubesWatched(sessionID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	e.count("list-tubes-watched")
	names := s.WatchedTubes()
	sort.Strings(names)
	return names, nil
}

// Uptime returns seconds since the engine started.
func (e *Engine) Uptime() int64 {
	return int64(time.Since(e.startedAt).Seconds())
}
