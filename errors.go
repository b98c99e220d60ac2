package process

import (
	stderrors "errors"
	"fmt"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeExecutionNotFound  = "PROC_EXECUTION_NOT_FOUND"
	ErrCodeInstanceNotFound   = "PROC_INSTANCE_NOT_FOUND"
	ErrCodeDefinitionNotFound = "PROC_DEFINITION_NOT_FOUND"
	ErrCodeJobNotFound        = "PROC_JOB_NOT_FOUND"
	ErrCodeTaskNotFound       = "PROC_TASK_NOT_FOUND"
	ErrCodeRevisionConflict   = "PROC_REVISION_CONFLICT"
	ErrCodeRetryCycleParse    = "PROC_RETRY_CYCLE_PARSE"
	ErrCodeHandlerResolution  = "PROC_HANDLER_RESOLUTION"
	ErrCodeIllegalRole        = "PROC_ILLEGAL_ROLE_TRANSITION"
	ErrCodeTreeCorrupt        = "PROC_TREE_CORRUPT"
	ErrCodeCommandReentrant   = "PROC_COMMAND_REENTRANT"
	ErrCodeStoreFailure       = "PROC_STORE_FAILURE"
)

// NotFoundError reports an entity addressed by id that the store does not hold.
func NotFoundError(kind, code, id string) *errors.Error {
	return errors.New(fmt.Sprintf("%s not found", kind), errors.CategoryBadInput).
		WithTextCode(code).
		WithMetadata(map[string]any{"id": id})
}

// ConflictError reports a lost optimistic-lock race on an entity.
func ConflictError(kind, id string, expected, actual int) *errors.Error {
	return errors.New(fmt.Sprintf("%s was updated concurrently", kind), errors.CategoryConflict).
		WithTextCode(ErrCodeRevisionConflict).
		WithMetadata(map[string]any{
			"id":       id,
			"expected": expected,
			"actual":   actual,
		})
}

// FatalError wraps unrecoverable store failures.
func FatalError(source error, msg string) *errors.Error {
	return errors.Wrap(source, errors.CategoryExternal, msg).
		WithTextCode(ErrCodeStoreFailure)
}

// CorruptTreeError signals a runtime invariant violation; commands must abort.
func CorruptTreeError(msg string, meta map[string]any) *errors.Error {
	err := errors.New(msg, errors.CategoryExternal).WithTextCode(ErrCodeTreeCorrupt)
	if len(meta) > 0 {
		err = err.WithMetadata(meta)
	}
	return err
}

func errorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsNotFound reports whether err is one of the addressed-by-id lookup failures.
func IsNotFound(err error) bool {
	switch errorCode(err) {
	case ErrCodeExecutionNotFound, ErrCodeInstanceNotFound,
		ErrCodeDefinitionNotFound, ErrCodeJobNotFound, ErrCodeTaskNotFound:
		return true
	}
	return false
}

// IsConflict reports whether err is a lost optimistic-lock race. Conflicts are
// retryable: the whole command can be replayed against fresh state.
func IsConflict(err error) bool {
	return errorCode(err) == ErrCodeRevisionConflict
}

// IsFatal reports whether err must abort without local retry.
func IsFatal(err error) bool {
	switch errorCode(err) {
	case ErrCodeStoreFailure, ErrCodeTreeCorrupt:
		return true
	}
	return false
}
