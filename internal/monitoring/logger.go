// Package monitoring carries the process-wide diagnostic logger. Every
// package logs through Logf so the daemon, the CLI tools, and tests can
// redirect or silence output in one place.
package monitoring

import "log"

// Logf is the shared diagnostic logger, log.Printf unless replaced via
// SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the package logger. nil installs a no-op sink.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
