package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// It must be called directly in a defer statement. The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback recovers, logs, and then calls callback if a panic occurred
func RecoverPanicWithCallback(logger *Logger, where string, callback func(recovered interface{})) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if callback != nil {
			callback(r)
		}
	}
}

func logPanic(logger *Logger, where string, r interface{}) {
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", where).
		Error("PANIC recovered")
}
