package executor

import (
	"context"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/command"
)

// acquireDueJobs claims up to batchSize acquirable jobs in one command: each
// claim stamps this worker as lock owner with a lease running out at
// now+leaseDuration. The claim commits with revision checks, so two workers
// racing for the same batch cannot both win; the loser logs and waits for
// the next cycle with the store state untouched.
func (e *JobExecutor) acquireDueJobs(ctx context.Context) ([]*process.Job, error) {
	acquired, err := command.Run(ctx, e.commands, func(ctx context.Context, c *command.Context) ([]*process.Job, error) {
		now := e.now()
		due, err := c.Session().FindDueJobs(ctx, now, e.batchSize)
		if err != nil {
			return nil, err
		}
		claimed := make([]*process.Job, 0, len(due))
		for _, job := range due {
			job.LockOwner = e.workerID
			job.LockExpiration = now.Add(e.leaseDuration)
			if err := c.Session().UpdateJob(ctx, job); err != nil {
				return nil, err
			}
			claimed = append(claimed, job)
		}
		return claimed, nil
	})
	if err != nil {
		if process.IsConflict(err) {
			e.logger.Debug("job acquisition lost a claim race worker=%s", e.workerID)
			return nil, nil
		}
		return nil, err
	}
	return acquired, nil
}
