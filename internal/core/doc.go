// Package core implements the job lifecycle engine.
//
// The engine is the in-memory data model of jobs, tubes, and sessions plus
// the state machine driving job transitions:
//
//	put ──────────────▶ delayed ──delay expires──▶ ready
//	 │                                               │ reserve
//	 └──(delay=0)──▶ ready ◀──release/TTR/close── reserved ──delete──▶ gone
//	                                 │ bury              │ touch (extends TTR)
//	                     ready ◀──kick── buried ◀────────┘
//
// # Model
//
// - A Job belongs to exactly one Tube and appears in exactly one of the
// tube's containers (ready set, delay set, buried list) — or in none while
// reserved, in which case the global jobs map is its sole reference.
// - A Tube's ready set is ordered by (priority, id) and its delay set by
// (deadline, id); the buried list and the waiting-session list are FIFOs.
// - A Session is one client connection. Producers target their used tube;
// workers reserve from their watched tubes.
//
// # Concurrency
//
// The engine is logically single-threaded over shared state: every command
// and every periodic sweep runs as one transaction under the engine mutex.
// The only wait happens between transactions — a blocking reserve parks the
// session on each watched tube's waiting list and blocks on a per-reserve
// delivery channel; dispatch and the reserve-timeout sweep resolve it, and
// whichever transaction commits first wins.
//
// # Time
//
// Operations that read the clock take a nowMs parameter; nowMs <= 0 means
// time.Now().UnixMilli(). Tests drive transitions with explicit timestamps
// instead of sleeping.
//
// # Durability
//
// With a write-ahead log attached, every state-creating or -mutating
// transition appends a record before the transaction commits; replay at
// startup rebuilds the model (reservations recover as ready, so delivery is
// at-least-once across crashes).
package core
