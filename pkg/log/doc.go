// Package log provides clojalk's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Entries flow through a Formatter
// (text or JSON) to one or more Outputs. The facade mirrors log/slog levels so
// callers can reason about severity the same way across the codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"))
//	l.Info("server started", log.Int("port", 11300))
//
// # Configuration
//
// Use ParseLevel and NewLogger options to build a logger from configuration
// values; components derive scoped loggers with With.
package log
