// Package beanstalk serves the beanstalkd text protocol over TCP.
//
// The package owns framing and parsing only: requests and responses are
// CRLF-delimited lines (put carries a byte-counted body), command names are
// case-insensitive, and every command outcome maps to a protocol keyword
// (INSERTED, RESERVED, NOT_FOUND, TIMED_OUT, ...). All queue semantics live
// in the core engine; each connection is one engine session, closed when
// the client disconnects or sends quit.
//
// Stats and list bodies are YAML, as beanstalkd emits them.
package beanstalk
