package process

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Builtin job handler types. The dispatch table maps these to resolvers; the
// surrounding infrastructure may register more.
const (
	JobTypeAsyncContinue = "async-continue"
	JobTypeTimerCatch    = "timer-catch"
	JobTypeTimerStart    = "timer-start"
)

const (
	// DefaultJobRetries is the number of attempts a job starts with when its
	// activity declares no retry cycle.
	DefaultJobRetries = 3

	// UnboundedRetries marks a job whose retry cycle declared an unlimited
	// repeat count.
	UnboundedRetries = math.MaxInt32
)

// Job is a durable, leasable unit of deferred work: a timer or an async
// continuation. All scheduling state lives on the row so any executor process
// can pick the job up.
type Job struct {
	ID string

	// ExecutionID is empty for timer-start jobs that fire before any
	// instance exists.
	ExecutionID         string
	ProcessInstanceID   string
	ProcessDefinitionID string

	// HandlerType selects the registered handler; HandlerConfig is the
	// handler-owned payload (an activity id, a definition key, ...).
	HandlerType   string
	HandlerConfig string

	Retries  int
	Attempts int
	Priority int
	DueDate  time.Time

	LockOwner      string
	LockExpiration time.Time

	ExceptionMessage    string
	ExceptionStacktrace string

	Revision  int
	CreatedAt time.Time
}

// NewJob mints a job for the given handler type with default retries.
func NewJob(handlerType, handlerConfig string) *Job {
	return &Job{
		ID:            uuid.NewString(),
		HandlerType:   handlerType,
		HandlerConfig: handlerConfig,
		Retries:       DefaultJobRetries,
		CreatedAt:     time.Now().UTC(),
	}
}

// Locked reports whether the job holds a live lease at the given instant.
func (j *Job) Locked(now time.Time) bool {
	return j.LockOwner != "" && j.LockExpiration.After(now)
}

// Due reports whether the job's due date has passed (an unset due date means
// immediately due).
func (j *Job) Due(now time.Time) bool {
	return j.DueDate.IsZero() || !j.DueDate.After(now)
}

// Acquirable reports whether an executor may lease the job right now: due,
// not exhausted, and past any lock expiration. A future LockExpiration
// blocks acquisition even without an owner; retry backoff rides on that.
func (j *Job) Acquirable(now time.Time) bool {
	return j.Due(now) && j.Retries > 0 && !j.LockExpiration.After(now)
}

// Exhausted reports whether the job failed terminally. Exhausted jobs stay in
// the store, with their captured exception, for operator remediation.
func (j *Job) Exhausted() bool {
	return j.Retries <= 0
}

// ReleaseLock drops the lease without touching any other scheduling state.
func (j *Job) ReleaseLock() {
	j.LockOwner = ""
	j.LockExpiration = time.Time{}
}

// RecordFailure captures the failure onto the job and advances the attempt
// counter. Attempts is the engine's own count of failed runs; it is
// independent of Revision, which exists only for optimistic locking.
func (j *Job) RecordFailure(message, stacktrace string) {
	j.Attempts++
	j.ExceptionMessage = truncate(message, 666)
	j.ExceptionStacktrace = stacktrace
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// back off to a rune boundary so the stored message stays valid UTF-8
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
