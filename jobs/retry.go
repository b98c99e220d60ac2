package jobs

import (
	"context"
	"time"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// RetryPolicy recomputes a failed job's remaining attempts and backoff. The
// policy mutates the job in the session of the failure-handling command; it
// never decides deletion.
type RetryPolicy interface {
	OnFailure(ctx context.Context, c *command.Context, job *process.Job, cause error) error
}

// DefaultRetryPolicy decrements retries by one and clears the lease, making
// the job immediately re-acquirable. This is the documented default backoff:
// none.
type DefaultRetryPolicy struct{}

func (DefaultRetryPolicy) OnFailure(ctx context.Context, c *command.Context, job *process.Job, cause error) error {
	message, trace := process.FailureDetail(cause)
	job.RecordFailure(message, trace)
	job.Retries--
	job.ReleaseLock()
	return c.Session().UpdateJob(ctx, job)
}

// CycleRetryPolicy honors a retry-cycle expression declared on the activity
// that owns the job, falling back to DefaultRetryPolicy when the activity
// declares none, when the expression does not parse, or when the job cannot
// be resolved to an activity at all. Fallback is a result here, not an
// exception path: the job always makes progress.
type CycleRetryPolicy struct {
	definitions *process.DefinitionRegistry
	fallback    DefaultRetryPolicy
	logger      process.Logger
	now         func() time.Time
}

// CyclePolicyOption customizes a CycleRetryPolicy.
type CyclePolicyOption func(*CycleRetryPolicy)

// WithPolicyLogger sets the policy logger.
func WithPolicyLogger(l process.Logger) CyclePolicyOption {
	return func(p *CycleRetryPolicy) {
		p.logger = l
	}
}

// WithPolicyClock overrides the clock, for tests.
func WithPolicyClock(now func() time.Time) CyclePolicyOption {
	return func(p *CycleRetryPolicy) {
		p.now = now
	}
}

// NewCycleRetryPolicy constructs the cycle-aware policy.
func NewCycleRetryPolicy(definitions *process.DefinitionRegistry, opts ...CyclePolicyOption) *CycleRetryPolicy {
	p := &CycleRetryPolicy{
		definitions: definitions,
		logger:      process.NewFmtLogger(nil),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *CycleRetryPolicy) OnFailure(ctx context.Context, c *command.Context, job *process.Job, cause error) error {
	expr, found := p.cycleExpression(job)
	if !found {
		return p.fallback.OnFailure(ctx, c, job, cause)
	}

	cycle, err := ParseRetryCycle(expr)
	if err != nil {
		p.logger.Warn("retry cycle unparseable, using default strategy job=%s expr=%q err=%v",
			job.ID, expr, err)
		return p.fallback.OnFailure(ctx, c, job, cause)
	}

	message, trace := process.FailureDetail(cause)
	job.RecordFailure(message, trace)

	now := p.now()
	switch {
	case job.Attempts <= 1:
		// first failure: back off by the interval; a bare duration-only
		// expression does not consume a retry here
		job.LockExpiration = now.Add(cycle.Interval)
		if !cycle.DurationOnly() {
			job.Retries--
		}
	case job.Attempts == 2:
		// second failure: re-derive remaining retries from the repeat
		// component, independent of the prior value
		switch {
		case cycle.DurationOnly():
			job.Retries = 1
		case cycle.Unbounded:
			job.Retries = process.UnboundedRetries
		default:
			job.Retries = cycle.Repetitions - 1
		}
		job.LockExpiration = now.Add(cycle.Interval)
	default:
		job.Retries--
		job.LockExpiration = now.Add(cycle.Interval)
	}

	job.LockOwner = ""
	return c.Session().UpdateJob(ctx, job)
}

// cycleExpression resolves the retry-cycle declaration owning the job.
func (p *CycleRetryPolicy) cycleExpression(job *process.Job) (string, bool) {
	if p.definitions == nil {
		return "", false
	}
	switch job.HandlerType {
	case process.JobTypeAsyncContinue, process.JobTypeTimerCatch:
		def, err := p.definitions.ByID(job.ProcessDefinitionID)
		if err != nil {
			return "", false
		}
		activity := def.FindActivity(job.HandlerConfig)
		if activity == nil || activity.RetryCycle == "" {
			return "", false
		}
		return activity.RetryCycle, true
	default:
		return "", false
	}
}
