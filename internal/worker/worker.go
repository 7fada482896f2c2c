// Package worker implements the polling background job runner.
//
// Jobs live in the jobs table; workers claim them with SKIP LOCKED so any
// number of concurrent workers (across processes) process each job once.
// Failed jobs retry with exponential backoff until max_attempts, unless the
// handler returns a PermanentError.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/repository"
)

// retryBaseDelay is the backoff unit between attempts: base * 2^(attempt-1).
const retryBaseDelay = 30 * time.Second

// Worker manages background job processing with concurrent workers.
type Worker struct {
	queries  *repository.Queries
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(queries *repository.Queries, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		queries:  queries,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("registered job handler", "job_type", jobType)
}

// Start begins processing jobs with the configured number of concurrent workers.
// It also recovers any stale jobs from previous worker crashes.
func (w *Worker) Start(ctx context.Context) {
	if err := w.recoverStaleJobs(ctx); err != nil {
		w.logger.Error("failed to recover stale jobs", "error", err)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// recoverStaleJobs resets long-running jobs left behind by crashed workers.
func (w *Worker) recoverStaleJobs(ctx context.Context) error {
	count, err := w.queries.RecoverStaleJobs(ctx, w.config.StaleJobThreshold)
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}

	if count > 0 {
		w.logger.Warn("recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}

	return nil
}

// runWorker is the main loop for a worker goroutine.
// It continuously polls for jobs until stopCh is closed.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("worker stopping")
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					// Queue is empty, nothing to do.
					continue
				}
				logger.Error("failed to process job", "error", err)
			}
		}
	}
}

// processNextJob attempts to claim and execute a single job.
// Returns sql.ErrNoRows if no jobs are available.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	// Claiming is a single atomic UPDATE with SKIP LOCKED, so concurrent
	// workers never double-claim.
	job, err := w.queries.ClaimNextJob(ctx)
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	logger.Info("processing job")
	metrics.JobStarted(job.JobType)

	start := time.Now()
	if err := w.executeJob(ctx, job); err != nil {
		logger.Error("job failed", "error", err)
		w.markJobFailed(ctx, job, err)
		return fmt.Errorf("execute job: %w", err)
	}

	if err := w.queries.CompleteJob(ctx, job.ID); err != nil {
		logger.Error("failed to mark job as completed", "error", err)
		return err
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	logger.Info("job completed", "duration", time.Since(start))

	return nil
}

// executeJob runs the appropriate handler for the job with a timeout context.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed routes a failed job: permanent errors and exhausted attempts
// go to the failed state, anything else is rescheduled with exponential
// backoff.
func (w *Worker) markJobFailed(ctx context.Context, job repository.Job, jobErr error) {
	errorMessage := jobErr.Error()

	if IsPermanent(jobErr) || job.Attempts >= job.MaxAttempts {
		if IsPermanent(jobErr) {
			w.logger.Warn("job failed with permanent error, will not retry", "job_id", job.ID, "error", errorMessage)
		} else {
			w.logger.Warn("job exhausted retry attempts", "job_id", job.ID, "attempts", job.Attempts, "error", errorMessage)
		}
		if err := w.queries.FailJob(ctx, job.ID, errorMessage); err != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", err)
		}
		metrics.JobFailed(job.JobType)
		return
	}

	delay := retryBaseDelay * time.Duration(1<<(job.Attempts-1))
	runAt := time.Now().Add(delay)
	if err := w.queries.RetryJob(ctx, job.ID, errorMessage, runAt); err != nil {
		w.logger.Error("failed to reschedule job", "job_id", job.ID, "error", err)
		return
	}

	metrics.JobRetried(job.JobType)
	w.logger.Info("job rescheduled", "job_id", job.ID, "delay", delay, "attempt", job.Attempts)
}
