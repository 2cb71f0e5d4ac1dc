// Package warehouse persists CRM snapshot data and the derived scoring
// tables. PostgresStore is the production backend; SQLiteStore backs local
// development and tests without a server.
package warehouse

import (
	"context"

	"github.com/sells-group/pipescore/internal/model"
)

// Store defines the persistence interface for the scoring pipeline.
//
// Replace* methods are partition-replacing writes scoped to one snapshot:
// re-running a snapshot overwrites its rows instead of appending duplicates.
// ReplaceStageMapping replaces the whole rubric table.
type Store interface {
	// Snapshot source data
	ReplaceCompanies(ctx context.Context, snapshotID string, rows []model.Company) (int64, error)
	ReplaceDeals(ctx context.Context, snapshotID string, rows []model.Deal) (int64, error)
	CompaniesForSnapshot(ctx context.Context, snapshotID string) ([]model.Company, error)
	DealsForSnapshot(ctx context.Context, snapshotID string) ([]model.Deal, error)

	// Reference data
	UpsertOwners(ctx context.Context, rows []model.Owner) (int64, error)
	UpsertDealStageReference(ctx context.Context, rows []model.DealStageRef) (int64, error)
	ClosedDealStages(ctx context.Context) (map[string]bool, error)

	// Stage mapping rubric
	ReplaceStageMapping(ctx context.Context, entries []model.StageMappingEntry) (int, error)
	StageMapping(ctx context.Context) ([]model.StageMappingEntry, error)

	// Pipeline units
	ReplaceUnits(ctx context.Context, snapshotID string, units []model.PipelineUnit) (int64, error)
	UnitsForSnapshot(ctx context.Context, snapshotID string) ([]model.PipelineUnit, error)
	CountUnits(ctx context.Context, snapshotID string) (int64, error)

	// Score history
	ReplaceHistory(ctx context.Context, snapshotID string, entries []model.ScoreHistoryEntry) (int64, error)
	HistoryForSnapshot(ctx context.Context, snapshotID string) ([]model.ScoreHistoryEntry, error)

	// Snapshot registry (append-only)
	AppendRegistryEntry(ctx context.Context, e model.RegistryEntry) error
	LatestRegistryEntry(ctx context.Context, status *model.RegistryStatus) (*model.RegistryEntry, error)
	RegistryForSnapshot(ctx context.Context, snapshotID string) ([]model.RegistryEntry, error)
	SnapshotsWithStatus(ctx context.Context, status model.RegistryStatus) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
