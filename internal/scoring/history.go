package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/warehouse"
)

// AggregateUnits rolls one snapshot's pipeline units up to (owner, combined
// stage) history rows. Units without a rubric score are excluded, matching
// the score views: an unmapped stage never contributes to an owner's total.
// num_companies counts distinct companies, so a company holding several open
// deals in the same stage counts once.
func AggregateUnits(units []model.PipelineUnit) []model.ScoreHistoryEntry {
	type group struct {
		companies map[string]bool
		total     float64
		latest    time.Time
	}

	type key struct {
		ownerID       string
		combinedStage string
	}

	groups := make(map[key]*group)
	for _, u := range units {
		if u.AdjustedScore == nil {
			continue
		}
		k := key{ownerID: u.OwnerID, combinedStage: u.CombinedStage}
		g := groups[k]
		if g == nil {
			g = &group{companies: make(map[string]bool)}
			groups[k] = g
		}
		g.companies[u.CompanyID] = true
		g.total += *u.AdjustedScore
		if u.RecordTimestamp.After(g.latest) {
			g.latest = u.RecordTimestamp
		}
	}

	entries := make([]model.ScoreHistoryEntry, 0, len(groups))
	for k, g := range groups {
		entries = append(entries, model.ScoreHistoryEntry{
			OwnerID:           k.ownerID,
			CombinedStage:     k.combinedStage,
			NumCompanies:      len(g.companies),
			TotalScore:        g.total,
			SnapshotTimestamp: g.latest,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OwnerID != entries[j].OwnerID {
			return entries[i].OwnerID < entries[j].OwnerID
		}
		return entries[i].CombinedStage < entries[j].CombinedStage
	})

	return entries
}

// HistoryAggregator waits for a snapshot's unit partition to be readable,
// aggregates it, and replaces the snapshot's history partition.
type HistoryAggregator struct {
	store     warehouse.Store
	readiness warehouse.ReadinessConfig
}

// NewHistoryAggregator returns a HistoryAggregator backed by store.
func NewHistoryAggregator(store warehouse.Store, readiness warehouse.ReadinessConfig) *HistoryAggregator {
	return &HistoryAggregator{store: store, readiness: readiness}
}

// Aggregate builds and persists the score history for snapshotID, stamping
// every row with that snapshot so the write replaces rather than appends.
func (a *HistoryAggregator) Aggregate(ctx context.Context, snapshotID string, expectedUnits int64) (int64, error) {
	log := zap.L().With(
		zap.String("component", "scoring"),
		zap.String("snapshot_id", snapshotID),
	)

	cfg := a.readiness
	cfg.MinRows = expectedUnits
	count, err := warehouse.WaitForUnits(ctx, a.store, snapshotID, cfg)
	if err != nil {
		return 0, eris.Wrapf(err, "scoring: units not readable for snapshot %s", snapshotID)
	}
	log.Debug("unit partition readable", zap.Int64("units", count))

	units, err := a.store.UnitsForSnapshot(ctx, snapshotID)
	if err != nil {
		return 0, eris.Wrapf(err, "scoring: load units for snapshot %s", snapshotID)
	}

	entries := AggregateUnits(units)
	for i := range entries {
		entries[i].SnapshotID = snapshotID
	}

	written, err := a.store.ReplaceHistory(ctx, snapshotID, entries)
	if err != nil {
		return 0, eris.Wrapf(err, "scoring: replace history for snapshot %s", snapshotID)
	}

	log.Info("score history aggregated",
		zap.Int("owner_stage_groups", len(entries)),
		zap.Int64("rows_written", written),
	)

	return written, nil
}
