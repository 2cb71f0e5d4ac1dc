// Package registry records snapshot lifecycle events in the append-only
// snapshot registry and answers discovery queries over it.
package registry

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/warehouse"
)

// Log appends lifecycle rows for scoring runs. Start and failure writes are
// advisory: a registry outage must never block or mask the scoring work
// itself, so those methods log write errors instead of returning them.
// Completion is the durable milestone and does return its error.
type Log struct {
	store warehouse.Store
	now   func() time.Time
}

// New returns a registry Log backed by store.
func New(store warehouse.Store) *Log {
	return &Log{store: store, now: time.Now}
}

func (l *Log) append(ctx context.Context, snapshotID string, status model.RegistryStatus, notes string) error {
	return l.store.AppendRegistryEntry(ctx, model.RegistryEntry{
		SnapshotID:      snapshotID,
		RecordTimestamp: l.now().UTC(),
		TriggeredBy:     model.TriggerScoring,
		Status:          status,
		Notes:           notes,
	})
}

// ScoringStarted records that scoring began for a snapshot.
func (l *Log) ScoringStarted(ctx context.Context, snapshotID string) {
	if err := l.append(ctx, snapshotID, model.StatusScoringStarted, ""); err != nil {
		zap.L().Warn("failed to record scoring start",
			zap.String("component", "registry"),
			zap.String("snapshot_id", snapshotID),
			zap.Error(err),
		)
	}
}

// ScoringCompleted records a successful scoring run with its row counts.
func (l *Log) ScoringCompleted(ctx context.Context, snapshotID string, notes string) error {
	if err := l.append(ctx, snapshotID, model.StatusScoringCompleted, notes); err != nil {
		return eris.Wrapf(err, "registry: record scoring completion for snapshot %s", snapshotID)
	}
	return nil
}

// ScoringFailed records a failed scoring run with the error message.
func (l *Log) ScoringFailed(ctx context.Context, snapshotID string, cause string) {
	if err := l.append(ctx, snapshotID, model.StatusScoringFailed, cause); err != nil {
		zap.L().Warn("failed to record scoring failure",
			zap.String("component", "registry"),
			zap.String("snapshot_id", snapshotID),
			zap.Error(err),
		)
	}
}

// Latest returns the most recent registry entry, optionally filtered to one
// status. Returns nil when the registry is empty.
func (l *Log) Latest(ctx context.Context, status *model.RegistryStatus) (*model.RegistryEntry, error) {
	return l.store.LatestRegistryEntry(ctx, status)
}

// ForSnapshot returns a snapshot's full lifecycle trail, oldest first.
func (l *Log) ForSnapshot(ctx context.Context, snapshotID string) ([]model.RegistryEntry, error) {
	return l.store.RegistryForSnapshot(ctx, snapshotID)
}

// CompletedIngestSnapshots lists every snapshot with a completed ingest,
// oldest first. This is the discovery query behind bulk rescoring.
func (l *Log) CompletedIngestSnapshots(ctx context.Context) ([]string, error) {
	return l.store.SnapshotsWithStatus(ctx, model.StatusIngestCompleted)
}

// LatestCompletedIngest returns the snapshot id of the most recent completed
// ingest, or an error when none exists.
func (l *Log) LatestCompletedIngest(ctx context.Context) (string, error) {
	status := model.StatusIngestCompleted
	e, err := l.store.LatestRegistryEntry(ctx, &status)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", eris.New("registry: no completed ingest snapshots")
	}
	return e.SnapshotID, nil
}
