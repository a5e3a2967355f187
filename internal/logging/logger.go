// Package logging provides the single swappable logging sink used across
// every package in this module.
package logging

import "log"

// Logger is deliberately minimal: every package logs through Printf-shaped
// calls only, so any *log.Logger (or test double) satisfies it without an
// adapter.
type Logger interface {
	Printf(format string, v ...any)
}

var pkgLogger Logger = log.Default()

// SetLogger replaces the module-wide logging sink. Safe to call once during
// startup; not safe to call concurrently with logging calls.
func SetLogger(logger Logger) {
	if logger != nil {
		pkgLogger = logger
	}
}

// Get returns the current sink, for packages that want to stash a reference
// rather than calling through the package function on every log line.
func Get() Logger { return pkgLogger }

func Printf(format string, v ...any) { pkgLogger.Printf(format, v...) }
