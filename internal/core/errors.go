package core

import "errors"

// Engine errors. The protocol layer maps these to response keywords; the
// engine itself never panics across a transaction boundary.
var (
	// ErrNotFound covers unknown job ids and permission failures
	// (release/bury/touch/delete by a non-reserver, delete of a delayed
	// job), which beanstalkd reports identically.
	ErrNotFound = errors.New("not found")

	// ErrNotIgnored is returned when ignoring a session's last watched tube.
	ErrNotIgnored = errors.New("not ignored")

	// ErrDraining rejects put while drain mode is on.
	ErrDraining = errors.New("draining")

	// ErrTimedOut resolves a reserve whose timeout elapsed.
	ErrTimedOut = errors.New("timed out")

	// ErrNoSession is returned for commands on a closed or unknown session.
	ErrNoSession = errors.New("no such session")
)
