// Package log provides the projection runtime's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. BaseLogger formats and writes
// entries itself through its formatter and outputs; a slog.Handler bridge,
// used by ToStdLogger and RedirectStdLogSampled, routes slog records through
// the same formatter/outputs pipeline so output stays consistent.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"), log.Str("ns", "default"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and a console and/or file output.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger, use ToStdLogger or
// RedirectStdLog. RedirectStdLogSampled additionally collapses repeated
// identical messages, which Pebble's WAL/compaction chatter benefits from.
package log
