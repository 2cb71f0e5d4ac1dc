package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/resilience"
	"github.com/sells-group/pipescore/internal/warehouse"
)

// UnitStats summarizes one unit-build pass for logging and registry notes.
type UnitStats struct {
	Companies           int
	OpenDeals           int
	ClosedDealsExcluded int
	OrphanDeals         int
	UnmappedUnits       int
	Units               int
}

// BuildUnits joins one snapshot's companies and deals into scored pipeline
// units. The unit grain is fixed: a company with no open deal yields exactly
// one unit, a company with N open deals yields exactly N. Deals whose stage
// is in closedStages are excluded before the join, and deals referencing a
// company absent from the snapshot are dropped and counted as orphans.
//
// Units whose combined stage is outside the rubric keep nil level and score.
func BuildUnits(snapshotID string, companies []model.Company, deals []model.Deal, closedStages map[string]bool, m *Mapping, now time.Time) ([]model.PipelineUnit, UnitStats) {
	stats := UnitStats{Companies: len(companies)}

	known := make(map[string]bool, len(companies))
	for _, c := range companies {
		known[c.CompanyID] = true
	}

	openByCompany := make(map[string][]model.Deal)
	for _, d := range deals {
		stage := NormalizeDealStage(d.DealStage)
		if closedStages[stage] {
			stats.ClosedDealsExcluded++
			continue
		}
		if !known[d.AssociatedCompanyID] {
			stats.OrphanDeals++
			continue
		}
		stats.OpenDeals++
		openByCompany[d.AssociatedCompanyID] = append(openByCompany[d.AssociatedCompanyID], d)
	}

	units := make([]model.PipelineUnit, 0, len(companies))
	appendUnit := func(c model.Company, dealID *string, dealStage *string) {
		lifecycle := NormalizeLifecycleStage(c.LifecycleStage)
		leadStatus := NormalizeLeadStatus(c.LeadStatus)

		combined, source := CombineStage(lifecycle, leadStatus, dealStage)

		u := model.PipelineUnit{
			SnapshotID:      snapshotID,
			CompanyID:       c.CompanyID,
			DealID:          dealID,
			OwnerID:         c.OwnerID,
			LifecycleStage:  lifecycle,
			LeadStatus:      leadStatus,
			DealStage:       dealStage,
			CombinedStage:   combined,
			StageSource:     source,
			RecordTimestamp: now,
		}
		if level, score, ok := m.Lookup(combined); ok {
			u.StageLevel = &level
			u.AdjustedScore = &score
		} else {
			stats.UnmappedUnits++
		}
		units = append(units, u)
	}

	for _, c := range companies {
		open := openByCompany[c.CompanyID]
		if len(open) == 0 {
			appendUnit(c, nil, nil)
			continue
		}
		for _, d := range open {
			stage := NormalizeDealStage(d.DealStage)
			dealID := d.DealID
			appendUnit(c, &dealID, &stage)
		}
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].CompanyID != units[j].CompanyID {
			return units[i].CompanyID < units[j].CompanyID
		}
		di, dj := "", ""
		if units[i].DealID != nil {
			di = *units[i].DealID
		}
		if units[j].DealID != nil {
			dj = *units[j].DealID
		}
		return di < dj
	})

	stats.Units = len(units)
	return units, stats
}

// UnitScorer reads one snapshot's CRM rows from the warehouse, builds scored
// units against a frozen Mapping, and replaces the snapshot's unit partition.
type UnitScorer struct {
	store warehouse.Store
	retry resilience.RetryConfig
	now   func() time.Time
}

// NewUnitScorer returns a UnitScorer backed by store.
func NewUnitScorer(store warehouse.Store) *UnitScorer {
	return &UnitScorer{
		store: store,
		retry: resilience.DefaultRetryConfig(),
		now:   time.Now,
	}
}

// Score builds and persists the pipeline units for snapshotID. The write is
// partition-replacing, so rescoring the same snapshot never double-appends.
func (s *UnitScorer) Score(ctx context.Context, snapshotID string, m *Mapping) (int64, UnitStats, error) {
	log := zap.L().With(
		zap.String("component", "scoring"),
		zap.String("snapshot_id", snapshotID),
	)

	companies, err := s.store.CompaniesForSnapshot(ctx, snapshotID)
	if err != nil {
		return 0, UnitStats{}, eris.Wrapf(err, "scoring: load companies for snapshot %s", snapshotID)
	}
	if len(companies) == 0 {
		return 0, UnitStats{}, eris.Errorf("scoring: snapshot %s has no companies", snapshotID)
	}

	deals, err := s.store.DealsForSnapshot(ctx, snapshotID)
	if err != nil {
		return 0, UnitStats{}, eris.Wrapf(err, "scoring: load deals for snapshot %s", snapshotID)
	}

	closedStages, err := s.store.ClosedDealStages(ctx)
	if err != nil {
		return 0, UnitStats{}, eris.Wrap(err, "scoring: load closed deal stages")
	}

	units, stats := BuildUnits(snapshotID, companies, deals, closedStages, m, s.now().UTC())

	if stats.OrphanDeals > 0 {
		log.Warn("open deals reference companies missing from snapshot",
			zap.Int("orphan_deals", stats.OrphanDeals))
	}
	if stats.UnmappedUnits > 0 {
		log.Warn("units outside the scoring rubric will carry null scores",
			zap.Int("unmapped_units", stats.UnmappedUnits))
	}

	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("scoring", "replace pipeline units")
	written, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int64, error) {
		return s.store.ReplaceUnits(ctx, snapshotID, units)
	})
	if err != nil {
		return 0, stats, eris.Wrapf(err, "scoring: replace units for snapshot %s", snapshotID)
	}

	log.Info("pipeline units scored",
		zap.Int("companies", stats.Companies),
		zap.Int("open_deals", stats.OpenDeals),
		zap.Int("closed_deals_excluded", stats.ClosedDealsExcluded),
		zap.Int("unmapped_units", stats.UnmappedUnits),
		zap.Int64("units_written", written),
	)

	return written, stats, nil
}
