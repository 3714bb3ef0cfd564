package job

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/portfolio-tracker/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner() *Runner {
	return NewRunner(logging.New(logging.LevelError, logging.FormatText))
}

func TestRunnerSuccess(t *testing.T) {
	runner := testRunner()

	result := runner.Run(context.Background(), "test_job", func(ctx context.Context, metrics *JobMetrics) error {
		metrics.Processed = 10
		metrics.Created = 7
		metrics.Skipped = 3
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, "test_job", result.JobName)
	assert.Empty(t, result.Error)
	assert.Equal(t, 10, result.Metrics.Processed)
	assert.Equal(t, 7, result.Metrics.Created)
	assert.Equal(t, 3, result.Metrics.Skipped)
	assert.False(t, result.StartedAt.IsZero())
}

func TestRunnerCapturesError(t *testing.T) {
	runner := testRunner()

	result := runner.Run(context.Background(), "failing_job", func(ctx context.Context, metrics *JobMetrics) error {
		metrics.Processed = 4
		return fmt.Errorf("provider unavailable")
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "provider unavailable")
	// Partial progress survives the failure
	assert.Equal(t, 4, result.Metrics.Processed)
}

func TestRunnerCapturesPanic(t *testing.T) {
	runner := testRunner()

	var result JobResult
	require.NotPanics(t, func() {
		result = runner.Run(context.Background(), "panicking_job", func(ctx context.Context, metrics *JobMetrics) error {
			metrics.Processed = 2
			panic("nil map write")
		})
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panic")
	assert.Contains(t, result.Error, "nil map write")
	assert.Equal(t, 2, result.Metrics.Processed)
}

func TestRunnerMeasuresDuration(t *testing.T) {
	runner := testRunner()

	result := runner.Run(context.Background(), "slow_job", func(ctx context.Context, metrics *JobMetrics) error {
		time.Sleep(15 * time.Millisecond)
		return nil
	})

	assert.GreaterOrEqual(t, result.DurationMS, int64(10))
}

func TestJobMetricsSetCustom(t *testing.T) {
	var m JobMetrics
	m.SetCustom("pagesFetched", 3)
	m.SetCustom("source", "coingecko")

	assert.Equal(t, 3, m.Custom["pagesFetched"])
	assert.Equal(t, "coingecko", m.Custom["source"])
}
