package executor

import (
	"context"
	"sync"
	"sync/atomic"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// processBatch runs the acquired jobs through a bounded worker pool and
// waits for the whole batch. Each job runs in its own command; one failing
// job never touches its batch mates.
func (e *JobExecutor) processBatch(ctx context.Context, batch []*process.Job) (completed, failed int) {
	var completedCount, failedCount int64

	queue := make(chan *process.Job)
	var wg sync.WaitGroup

	workers := e.workers
	if workers > len(batch) {
		workers = len(batch)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if err := e.runJob(ctx, job); err != nil {
					atomic.AddInt64(&failedCount, 1)
				} else {
					atomic.AddInt64(&completedCount, 1)
				}
			}
		}()
	}

	for _, job := range batch {
		select {
		case queue <- job:
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return int(atomic.LoadInt64(&completedCount)), int(atomic.LoadInt64(&failedCount))
		}
	}
	close(queue)
	wg.Wait()
	return int(atomic.LoadInt64(&completedCount)), int(atomic.LoadInt64(&failedCount))
}

// runJob executes one job: the success path runs the handler and deletes the
// job inside the same command, so either the handler's effects and the job's
// removal both commit or neither does. A command that lost a revision race is
// replayed in place a bounded number of times against fresh state; any other
// failure is routed through the retry policy in a separate command.
func (e *JobExecutor) runJob(ctx context.Context, job *process.Job) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxConflictRetries; attempt++ {
		lastErr = e.executeJobCommand(ctx, job.ID)
		if lastErr == nil {
			return nil
		}
		if !process.IsConflict(lastErr) {
			break
		}
		e.logger.Debug("job command replay after conflict job=%s attempt=%d", job.ID, attempt+1)
	}

	if process.IsConflict(lastErr) {
		// still losing races after the replays: leave the lease to expire
		// and let a later cycle pick the job up again
		e.logger.Warn("job conflict retries exhausted job=%s", job.ID)
		return lastErr
	}

	e.logger.Error("job handler failed job=%s type=%s err=%v", job.ID, job.HandlerType, lastErr)
	if failErr := e.handleFailure(ctx, job.ID, lastErr); failErr != nil {
		e.logger.Error("job failure handling failed job=%s err=%v", job.ID, failErr)
	}
	return lastErr
}

// executeJobCommand is the per-attempt success path. The job is re-read
// inside the command: a job already deleted, or re-leased by another worker
// after our lease lapsed, is skipped without error.
func (e *JobExecutor) executeJobCommand(ctx context.Context, jobID string) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		job, err := c.Session().FindJob(ctx, jobID)
		if err != nil {
			if process.IsNotFound(err) {
				return nil
			}
			return err
		}
		if job.LockOwner != e.workerID {
			e.logger.Debug("skipping job leased elsewhere job=%s owner=%s", job.ID, job.LockOwner)
			return nil
		}

		handler, err := e.handlers.Resolve(job.HandlerType)
		if err != nil {
			return err
		}
		if err := handler.Execute(ctx, c, job); err != nil {
			return err
		}
		return c.Session().DeleteJob(ctx, job.ID)
	})
}

// handleFailure applies the retry policy in its own command. An exhausted
// job stays in the store for operator inspection.
func (e *JobExecutor) handleFailure(ctx context.Context, jobID string, cause error) error {
	return e.commands.Execute(ctx, func(ctx context.Context, c *command.Context) error {
		job, err := c.Session().FindJob(ctx, jobID)
		if err != nil {
			if process.IsNotFound(err) {
				return nil
			}
			return err
		}
		if err := e.policy.OnFailure(ctx, c, job, cause); err != nil {
			return err
		}
		if job.Exhausted() {
			e.logger.Warn("job exhausted its retries job=%s type=%s attempts=%d", job.ID, job.HandlerType, job.Attempts)
		}
		return nil
	})
}
