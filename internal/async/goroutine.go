package async

import (
	"fmt"
	"runtime/debug"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// PanicError wraps a recovered panic value so callers can record it as a
// regular failure.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// GoWithPanicHandler runs fn in a goroutine and hands any recovered panic to
// onPanic after logging it.
func GoWithPanicHandler(logger PanicLogger, name string, fn func(), onPanic func(*PanicError)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				perr := &PanicError{Name: name, Value: r, Stack: debug.Stack()}
				logPanic(logger, name, r, perr.Stack)
				if onPanic != nil {
					onPanic(perr)
				}
			}
		}()
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r, debug.Stack())
	}
}

func logPanic(logger PanicLogger, name string, r any, stack []byte) {
	if logger == nil {
		return
	}
	if name == "" {
		logger.Error("goroutine panic: %v, stack: %s", r, stack)
		return
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, stack)
}
