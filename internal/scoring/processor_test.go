package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/registry"
	"github.com/sells-group/pipescore/internal/resilience"
	"github.com/sells-group/pipescore/internal/warehouse"
)

// memStore is an in-memory warehouse.Store for driving the processor without
// a database. Individual operations can be made to fail via the err fields.
type memStore struct {
	companies map[string][]model.Company
	deals     map[string][]model.Deal
	mapping   []model.StageMappingEntry
	units     map[string][]model.PipelineUnit
	history   map[string][]model.ScoreHistoryEntry
	registry  []model.RegistryEntry
	closed    map[string]bool

	replaceUnitsErr   error
	replaceHistoryErr error
	appendRegistryErr error
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[string][]model.Company),
		deals:     make(map[string][]model.Deal),
		units:     make(map[string][]model.PipelineUnit),
		history:   make(map[string][]model.ScoreHistoryEntry),
		closed:    make(map[string]bool),
	}
}

func (s *memStore) ReplaceCompanies(_ context.Context, snapshotID string, rows []model.Company) (int64, error) {
	s.companies[snapshotID] = rows
	return int64(len(rows)), nil
}

func (s *memStore) ReplaceDeals(_ context.Context, snapshotID string, rows []model.Deal) (int64, error) {
	s.deals[snapshotID] = rows
	return int64(len(rows)), nil
}

func (s *memStore) CompaniesForSnapshot(_ context.Context, snapshotID string) ([]model.Company, error) {
	return s.companies[snapshotID], nil
}

func (s *memStore) DealsForSnapshot(_ context.Context, snapshotID string) ([]model.Deal, error) {
	return s.deals[snapshotID], nil
}

func (s *memStore) UpsertOwners(_ context.Context, rows []model.Owner) (int64, error) {
	return int64(len(rows)), nil
}

func (s *memStore) UpsertDealStageReference(_ context.Context, rows []model.DealStageRef) (int64, error) {
	return int64(len(rows)), nil
}

func (s *memStore) ClosedDealStages(_ context.Context) (map[string]bool, error) {
	return s.closed, nil
}

func (s *memStore) ReplaceStageMapping(_ context.Context, entries []model.StageMappingEntry) (int, error) {
	s.mapping = entries
	return len(entries), nil
}

func (s *memStore) StageMapping(_ context.Context) ([]model.StageMappingEntry, error) {
	return s.mapping, nil
}

func (s *memStore) ReplaceUnits(_ context.Context, snapshotID string, units []model.PipelineUnit) (int64, error) {
	if s.replaceUnitsErr != nil {
		return 0, s.replaceUnitsErr
	}
	s.units[snapshotID] = units
	return int64(len(units)), nil
}

func (s *memStore) UnitsForSnapshot(_ context.Context, snapshotID string) ([]model.PipelineUnit, error) {
	return s.units[snapshotID], nil
}

func (s *memStore) CountUnits(_ context.Context, snapshotID string) (int64, error) {
	return int64(len(s.units[snapshotID])), nil
}

func (s *memStore) ReplaceHistory(_ context.Context, snapshotID string, entries []model.ScoreHistoryEntry) (int64, error) {
	if s.replaceHistoryErr != nil {
		return 0, s.replaceHistoryErr
	}
	s.history[snapshotID] = entries
	return int64(len(entries)), nil
}

func (s *memStore) HistoryForSnapshot(_ context.Context, snapshotID string) ([]model.ScoreHistoryEntry, error) {
	return s.history[snapshotID], nil
}

func (s *memStore) AppendRegistryEntry(_ context.Context, e model.RegistryEntry) error {
	if s.appendRegistryErr != nil {
		return s.appendRegistryErr
	}
	s.registry = append(s.registry, e)
	return nil
}

func (s *memStore) LatestRegistryEntry(_ context.Context, status *model.RegistryStatus) (*model.RegistryEntry, error) {
	for i := len(s.registry) - 1; i >= 0; i-- {
		if status == nil || s.registry[i].Status == *status {
			e := s.registry[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (s *memStore) RegistryForSnapshot(_ context.Context, snapshotID string) ([]model.RegistryEntry, error) {
	var out []model.RegistryEntry
	for _, e := range s.registry {
		if e.SnapshotID == snapshotID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) SnapshotsWithStatus(_ context.Context, status model.RegistryStatus) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.registry {
		if e.Status == status && !seen[e.SnapshotID] {
			seen[e.SnapshotID] = true
			out = append(out, e.SnapshotID)
		}
	}
	return out, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

func (s *memStore) statuses(snapshotID string) []model.RegistryStatus {
	var out []model.RegistryStatus
	for _, e := range s.registry {
		if e.SnapshotID == snapshotID {
			out = append(out, e.Status)
		}
	}
	return out
}

func fastReadiness() warehouse.ReadinessConfig {
	return warehouse.ReadinessConfig{
		Interval:     time.Millisecond,
		StableChecks: 2,
		Timeout:      time.Second,
	}
}

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func newTestProcessor(store *memStore, opts ...ProcessorOption) *Processor {
	base := []ProcessorOption{
		WithReadiness(fastReadiness()),
		WithRetry(fastRetry()),
	}
	return NewProcessor(store, registry.New(store), append(base, opts...)...)
}

func seedSnapshot(store *memStore, snapshotID string) {
	store.companies[snapshotID] = []model.Company{
		company("c1", "o1", "lead", sp("new")),
		company("c2", "o1", "opportunity", nil),
		company("c3", "o2", "subscriber", nil),
	}
	store.deals[snapshotID] = []model.Deal{
		deal("d1", "c2", "qualifiedtobuy"),
		deal("d2", "c2", "contractsent"),
	}
	store.closed["contractsent"] = true
}

func TestProcessorSuccess(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-1")

	result := newTestProcessor(store).Process(context.Background(), "snap-1")

	assert.Equal(t, model.ResultSuccess, result.Status)
	assert.Equal(t, "snap-1", result.SnapshotID)
	assert.Equal(t, 15, result.StageMapping)
	assert.Equal(t, int64(3), result.PipelineUnits)
	// c3 is unmapped, so history holds (o1, lead/new) and (o1, opportunity/qualifiedtobuy).
	assert.Equal(t, int64(2), result.ScoreHistory)
	assert.Equal(t, int64(5), result.ProcessedRecords)
	assert.Empty(t, result.Error)

	assert.Len(t, store.mapping, 15)
	assert.Len(t, store.units["snap-1"], 3)
	require.Len(t, store.history["snap-1"], 2)
	for _, h := range store.history["snap-1"] {
		assert.Equal(t, "snap-1", h.SnapshotID)
	}

	assert.Equal(t, []model.RegistryStatus{
		model.StatusScoringStarted,
		model.StatusScoringCompleted,
	}, store.statuses("snap-1"))
}

func TestProcessorRerunIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-1")
	proc := newTestProcessor(store)

	first := proc.Process(context.Background(), "snap-1")
	second := proc.Process(context.Background(), "snap-1")

	require.Equal(t, model.ResultSuccess, first.Status)
	require.Equal(t, model.ResultSuccess, second.Status)
	assert.Equal(t, first.PipelineUnits, second.PipelineUnits)
	assert.Equal(t, first.ScoreHistory, second.ScoreHistory)

	// Derived partitions were replaced, not appended.
	assert.Len(t, store.units["snap-1"], 3)
	assert.Len(t, store.history["snap-1"], 2)
}

func TestProcessorEmptySnapshotID(t *testing.T) {
	store := newMemStore()

	result := newTestProcessor(store).Process(context.Background(), "")

	assert.Equal(t, model.ResultError, result.Status)
	assert.Contains(t, result.Error, "empty snapshot id")
	assert.Empty(t, store.registry)
}

func TestProcessorNoCompanies(t *testing.T) {
	store := newMemStore()

	result := newTestProcessor(store).Process(context.Background(), "snap-missing")

	assert.Equal(t, model.ResultError, result.Status)
	assert.Contains(t, result.Error, "no companies")
	assert.Equal(t, []model.RegistryStatus{
		model.StatusScoringStarted,
		model.StatusScoringFailed,
	}, store.statuses("snap-missing"))
}

func TestProcessorUnitWriteFailure(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-1")
	store.replaceUnitsErr = eris.New("disk full")

	result := newTestProcessor(store).Process(context.Background(), "snap-1")

	assert.Equal(t, model.ResultError, result.Status)
	assert.Contains(t, result.Error, "disk full")
	assert.Empty(t, store.units["snap-1"])
	assert.Equal(t, []model.RegistryStatus{
		model.StatusScoringStarted,
		model.StatusScoringFailed,
	}, store.statuses("snap-1"))
}

func TestProcessorCompletionWriteFailureFailsRun(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-1")
	proc := newTestProcessor(store)

	// Fail only the registry writes. Start is advisory so the run proceeds;
	// the completion write is durable and must fail the run.
	store.appendRegistryErr = eris.New("registry unavailable")
	result := proc.Process(context.Background(), "snap-1")

	assert.Equal(t, model.ResultError, result.Status)
	assert.Contains(t, result.Error, "registry unavailable")
	// Scoring work itself still landed.
	assert.Len(t, store.units["snap-1"], 3)
}

func TestProcessorInvalidMappingEntries(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-1")

	bad := []model.StageMappingEntry{{CombinedStage: "lead/new", StageLevel: 1, AdjustedScore: 1.0}}
	result := newTestProcessor(store, WithMappingEntries(bad)).Process(context.Background(), "snap-1")

	assert.Equal(t, model.ResultError, result.Status)
	assert.Contains(t, result.Error, "disqualified")
}

func TestProcessorUsesClock(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-1")

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	result := newTestProcessor(store, WithClock(clock)).Process(context.Background(), "snap-1")

	require.Equal(t, model.ResultSuccess, result.Status)
	assert.Greater(t, result.ProcessingTimeSeconds, 0.0)
	for _, u := range store.units["snap-1"] {
		assert.True(t, u.RecordTimestamp.After(base))
	}
}

func TestProcessorEvent(t *testing.T) {
	store := newMemStore()
	seedSnapshot(store, "snap-7")

	event := model.SnapshotEvent{SnapshotID: "snap-7"}
	result := newTestProcessor(store).ProcessEvent(context.Background(), event)

	assert.Equal(t, model.ResultSuccess, result.Status)
	assert.Equal(t, "snap-7", result.SnapshotID)
}
