package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/polithane/polithane-media-service/internal/domain/entity"
	"github.com/polithane/polithane-media-service/internal/domain/port"
	"github.com/polithane/polithane-media-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// Executor runs the pipeline for one claimed job. Satisfied by
// usecase.ProcessMediaUseCase.
type Executor interface {
	Execute(ctx context.Context, job *entity.MediaJob) error
}

// claimBackoff is slept after losing a claim race so rival instances spread
// out before re-polling.
const claimBackoff = 250 * time.Millisecond

// Poller drains the job store: poll for the oldest queued job, claim it
// with the conditional update, and run the pipeline. Any number of Poller
// instances may run against the same store; the claim is the only
// synchronization between them.
type Poller struct {
	jobs        port.JobStore
	uc          Executor
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func NewPoller(jobs port.JobStore, uc Executor, interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	return &Poller{
		jobs:        jobs,
		uc:          uc,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Run loops until ctx is cancelled. A single bad iteration never
// terminates the loop; store errors are logged and followed by a backoff.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		default:
		}

		busy, err := p.pollOnce(ctx)
		switch {
		case err != nil:
			p.logger.Error("poll iteration failed", zap.Error(err))
			sleep(ctx, p.interval)
		case !busy:
			sleep(ctx, p.interval)
		}
	}
}

// pollOnce handles one iteration. busy is true when a job was claimed and
// processed, meaning the next poll should happen immediately.
func (p *Poller) pollOnce(ctx context.Context) (busy bool, err error) {
	job, err := p.jobs.NextQueued(ctx)
	if err != nil {
		return false, fmt.Errorf("poll queue: %w", err)
	}
	if job == nil {
		return false, nil
	}

	attempts, claimed, err := p.jobs.Claim(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		// A rival worker got there first; not an error.
		metrics.ClaimConflictsTotal.Inc()
		sleep(ctx, claimBackoff)
		return false, nil
	}
	job.Status = entity.JobStatusProcessing
	job.Attempts = attempts

	// A crashed worker can leave a job cycling past its budget; finalize it
	// instead of burning another full pipeline run.
	if attempts > p.maxAttempts {
		p.logger.Warn("claimed job is over its attempt limit",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempts", attempts),
		)
		if err := p.jobs.MarkError(ctx, job.ID, "max attempts exceeded"); err != nil {
			return false, fmt.Errorf("finalize over-limit job: %w", err)
		}
		metrics.JobsProcessedTotal.WithLabelValues("error").Inc()
		return true, nil
	}

	p.process(ctx, job)
	return true, nil
}

// process shields the loop from the pipeline: the use case settles job
// state itself, and a panic is downgraded to a normal failed attempt.
func (p *Poller) process(ctx context.Context, job *entity.MediaJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panicked",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
			)
			p.settlePanicked(ctx, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := p.uc.Execute(ctx, job); err != nil {
		p.logger.Warn("job attempt failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func (p *Poller) settlePanicked(ctx context.Context, job *entity.MediaJob, errMsg string) {
	var err error
	if job.CanRetry(p.maxAttempts) {
		err = p.jobs.Requeue(ctx, job.ID, errMsg)
		metrics.RetriesTotal.Inc()
	} else {
		err = p.jobs.MarkError(ctx, job.ID, errMsg)
		metrics.JobsProcessedTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		p.logger.Error("failed to settle panicked job", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
