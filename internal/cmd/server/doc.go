// Package serverrun wires configuration, recovery, the engine, and the
// listeners into a running clojalkd process.
package serverrun
