package async

import "runtime/debug"

// ErrorLogger receives panic reports from background goroutines.
type ErrorLogger interface {
	Error(format string, args ...any)
}

// Go runs fn on a new goroutine and keeps a panic from taking the process
// down. The name shows up in the panic report.
func Go(logger ErrorLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs a recovered panic with its stack. Intended for use in a defer.
func Recover(logger ErrorLogger, name string) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		return
	}
	if name == "" {
		logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
		return
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
}
