package scoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/registry"
)

// Rescorer replays scoring over every snapshot with a completed ingest,
// oldest first. Used after a rubric change to rebuild all derived tables.
type Rescorer struct {
	proc *Processor
	reg  *registry.Log
	now  func() time.Time
}

// NewRescorer wires a Rescorer over an existing Processor.
func NewRescorer(proc *Processor, reg *registry.Log) *Rescorer {
	return &Rescorer{proc: proc, reg: reg, now: time.Now}
}

// RescoreAll discovers and rescores every completed-ingest snapshot in
// chronological order. A failed snapshot is recorded and the loop continues;
// partition-replacing writes make re-running the failed subset safe. The
// returned summary is nil only when discovery itself fails or no snapshots
// exist.
func (r *Rescorer) RescoreAll(ctx context.Context) (*model.RescoreSummary, error) {
	log := zap.L().With(zap.String("component", "scoring"))

	snapshots, err := r.reg.CompletedIngestSnapshots(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: discover snapshots for rescore")
	}
	if len(snapshots) == 0 {
		return nil, eris.New("scoring: no completed ingest snapshots to rescore")
	}

	log.Info("bulk rescore started", zap.Int("snapshots", len(snapshots)))
	start := r.now()

	summary := &model.RescoreSummary{Discovered: len(snapshots)}
	for i, snapshotID := range snapshots {
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "scoring: bulk rescore canceled")
		}

		res := r.proc.Process(ctx, snapshotID)
		if res.Status == model.ResultSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.Failures = append(summary.Failures, model.SnapshotFailure{
				SnapshotID: snapshotID,
				Error:      res.Error,
			})
		}

		if (i+1)%10 == 0 || i+1 == len(snapshots) {
			log.Info("bulk rescore progress",
				zap.Int("done", i+1),
				zap.Int("total", len(snapshots)),
				zap.Int("failed", summary.Failed),
			)
		}
	}

	summary.TotalDurationSeconds = r.now().Sub(start).Seconds()
	summary.AvgSecondsPerSnapshot = summary.TotalDurationSeconds / float64(len(snapshots))

	log.Info("bulk rescore finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Float64("total_seconds", summary.TotalDurationSeconds),
	)
	return summary, nil
}
