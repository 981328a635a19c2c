package core

// Observer receives engine events for metric export. Implementations must
// be fast and non-blocking; callbacks run inside the engine transaction.
type Observer interface {
	// Command is called once per dispatched command verb.
	Command(name string)

	// JobInserted is called for every successful put.
	JobInserted(tube string)

	// JobTimedOut is called when a reservation's TTR expires.
	JobTimedOut()

	// JobStates reports current totals per state after each sweep tick.
	JobStates(ready, delayed, reserved, buried int)
}
