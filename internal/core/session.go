package core

// SessionType is the declared role of a session. It is informational;
// commands do not hard-enforce roles.
type SessionType int

// Session types
const (
	Producer SessionType = iota
	Worker
)

// String returns the stats name of the session type.
func (t SessionType) String() string {
	if t == Worker {
		return "worker"
	}
	return "producer"
}

// SessionState tracks where a session is in the reserve protocol.
type SessionState int

// Session states
const (
	SessionIdle SessionState = iota
	SessionWaiting
	SessionWorking
)

// reserveOutcome is delivered on a session's pending channel to resolve a
// blocking reserve.
type reserveOutcome struct {
	job      *Job
	timedOut bool
}

// Session is one client connection (or one embedded caller).
type Session struct {
	ID   string
	Type SessionType

	State SessionState

	// Use is the tube producer commands target.
	Use string
	// Watch is the set of tube names worker reserves select from.
	Watch map[string]struct{}

	// DeadlineAt is the wall time a waiting session's reserve expires;
	// 0 means no timeout.
	DeadlineAt int64

	// Incoming is the job most recently assigned to this session by
	// dispatch; nil if none pending.
	Incoming *Job

	// ReservedJobs holds the ids currently reserved by this session.
	ReservedJobs map[uint64]struct{}

	// pending resolves the in-flight blocking reserve, if any. It is
	// replaced on every blocking reserve and has capacity 1 so the engine
	// never blocks delivering into it.
	pending chan reserveOutcome
}

func newSession(id string, typ SessionType) *Session {
	return &Session{
		ID:           id,
		Type:         typ,
		Use:          DefaultTube,
		Watch:        map[string]struct{}{DefaultTube: {}},
		ReservedJobs: make(map[uint64]struct{}),
	}
}

// watching reports whether the session watches the named tube.
func (s *Session) watching(name string) bool {
	_, ok := s.Watch[name]
	return ok
}

// WatchedTubes returns the watched tube names in unspecified order.
func (s *Session) WatchedTubes() []string {
	names := make([]string, 0, len(s.Watch))
	for n := range s.Watch {
		names = append(names, n)
	}
	return names
}
