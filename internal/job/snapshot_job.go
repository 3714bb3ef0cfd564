package job

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

type snapshotCapturer interface {
	CaptureAll(ctx context.Context, date time.Time, snapshotType types.SnapshotType, constructIfMissing bool) (service.CaptureSummary, error)
}

// SnapshotJob runs the scheduled fleet-wide snapshot capture. The capture is
// idempotent per portfolio and date, so a crashed or repeated run converges
// instead of duplicating snapshots. Scheduled runs do not construct missing
// allocations; a portfolio that was never constructed counts as a failure.
type SnapshotJob struct {
	snapshots    snapshotCapturer
	snapshotType types.SnapshotType
}

// NewSnapshotJob creates a snapshot job for the given snapshot type.
func NewSnapshotJob(snapshots snapshotCapturer, snapshotType types.SnapshotType) *SnapshotJob {
	return &SnapshotJob{
		snapshots:    snapshots,
		snapshotType: snapshotType,
	}
}

// Name returns the job name used in logs and results.
func (j *SnapshotJob) Name() string {
	return fmt.Sprintf("snapshot_%s", j.snapshotType)
}

// Run captures today's snapshot for every portfolio.
func (j *SnapshotJob) Run(ctx context.Context, metrics *JobMetrics) error {
	summary, err := j.snapshots.CaptureAll(ctx, time.Now().UTC(), j.snapshotType, false)
	if err != nil {
		return err
	}

	metrics.Processed = summary.Created + summary.Existing + summary.Failed
	metrics.Created = summary.Created
	metrics.Skipped = summary.Existing
	metrics.SetCustom("failed", summary.Failed)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d portfolio captures failed", summary.Failed, metrics.Processed)
	}
	return nil
}
