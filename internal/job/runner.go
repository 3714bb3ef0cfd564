// Package job provides the idempotent collector jobs and the runner that
// wraps their execution.
package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/portfolio-tracker/internal/logging"
)

// JobMetrics counts what a job actually did. Jobs mutate the metrics they
// receive; the runner reports whatever state they reached, including partial
// progress before a failure.
type JobMetrics struct {
	Processed int                    `json:"processed"`
	Created   int                    `json:"created"`
	Updated   int                    `json:"updated"`
	Skipped   int                    `json:"skipped"`
	Custom    map[string]interface{} `json:"custom,omitempty"`
}

// SetCustom records a job-specific metric.
func (m *JobMetrics) SetCustom(key string, value interface{}) {
	if m.Custom == nil {
		m.Custom = make(map[string]interface{})
	}
	m.Custom[key] = value
}

// JobResult is the uniform envelope every job run resolves to. Failures are
// data: errors and panics inside the job body land here instead of
// propagating to the scheduler.
type JobResult struct {
	JobName    string     `json:"jobName"`
	Success    bool       `json:"success"`
	StartedAt  time.Time  `json:"startedAt"`
	DurationMS int64      `json:"durationMs"`
	Metrics    JobMetrics `json:"metrics"`
	Error      string     `json:"error,omitempty"`
}

// JobFunc is one unit of collector work.
type JobFunc func(ctx context.Context, metrics *JobMetrics) error

// Runner executes jobs with uniform timing, logging, and failure capture.
type Runner struct {
	logger *logging.Logger
}

// NewRunner creates a new job runner
func NewRunner(logger *logging.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes one job and always returns a result, never panics. A panic in
// the job body is recovered, logged with its stack, and reported as a failed
// result so one bad job cannot take down the scheduler loop.
func (r *Runner) Run(ctx context.Context, jobName string, fn JobFunc) JobResult {
	result := JobResult{
		JobName:   jobName,
		StartedAt: time.Now().UTC(),
	}

	logger := r.logger.WithField("job", jobName)
	logger.Info("job started")

	err := r.invoke(ctx, fn, &result.Metrics)

	result.DurationMS = time.Since(result.StartedAt).Milliseconds()

	if err != nil {
		result.Error = err.Error()
		logger.WithError(err).WithFields(map[string]interface{}{
			"durationMs": result.DurationMS,
			"processed":  result.Metrics.Processed,
		}).Error("job failed")
		return result
	}

	result.Success = true
	logger.WithFields(map[string]interface{}{
		"durationMs": result.DurationMS,
		"processed":  result.Metrics.Processed,
		"created":    result.Metrics.Created,
		"updated":    result.Metrics.Updated,
		"skipped":    result.Metrics.Skipped,
	}).Info("job completed")

	return result
}

func (r *Runner) invoke(ctx context.Context, fn JobFunc, metrics *JobMetrics) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("stack", string(debug.Stack())).Error(fmt.Sprintf("job panicked: %v", rec))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, metrics)
}
