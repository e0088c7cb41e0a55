// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional scope tag
// (a worker name or connection id), and message.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Server listening on %s", addr)
//	logger.Debug("worker-2", "got a job; executing")
//	logger.Error("worker-2", "job panicked: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("pool", "Debug message")
//
// Levels can be read from configuration with ParseLevel.
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
