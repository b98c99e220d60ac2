package process

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/goliatone/go-errors"
)

// PanicError is what a recovered panic becomes inside a worker: the original
// value plus a cleaned stack, ready to be captured onto a job.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverPanic converts a recover() value into a PanicError wrapped in the
// engine error taxonomy. Returns nil when rec is nil.
func RecoverPanic(rec any) error {
	if rec == nil {
		return nil
	}
	stack := make([]byte, 8096)
	n := runtime.Stack(stack, false)
	pe := &PanicError{
		Value: rec,
		Stack: CleanStack(stack[:n]),
	}
	return errors.Wrap(pe, errors.CategoryHandler, "recovered panic").
		WithTextCode("PROC_PANIC")
}

// CleanStack removes the runtime's recover/panic frames so the stored trace
// starts at the user frame that panicked.
func CleanStack(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() call line and its file reference line
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}

// FailureDetail extracts the short message and the full trace for exception
// capture. Panic errors carry their own stack; plain errors record the error
// chain as the trace.
func FailureDetail(err error) (message, stacktrace string) {
	if err == nil {
		return "", ""
	}
	message = err.Error()
	var pe *PanicError
	if stderrors.As(err, &pe) {
		return message, string(pe.Stack)
	}
	var sb strings.Builder
	for depth, cause := 0, err; cause != nil && depth < 32; depth++ {
		if depth > 0 {
			sb.WriteString("\ncaused by: ")
		}
		sb.WriteString(cause.Error())
		cause = stderrors.Unwrap(cause)
	}
	return message, sb.String()
}
