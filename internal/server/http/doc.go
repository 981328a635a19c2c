// Package httpserver exposes the admin surface: health, the global stats
// snapshot as JSON, and Prometheus metrics. It is optional and runs on its
// own listener, separate from the protocol port.
package httpserver
