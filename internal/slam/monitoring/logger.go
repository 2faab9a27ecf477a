// Package monitoring holds the package-level diagnostic logger shared
// across the SLAM engine, following the same redirectable-logger
// pattern the rest of this module's ancestry uses: tests and
// embedders can swap it out without threading a logger through every
// constructor.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to
// log.Printf but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, useful for quiet test runs.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
