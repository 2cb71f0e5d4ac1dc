package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/registry"
	"github.com/sells-group/pipescore/internal/resilience"
	"github.com/sells-group/pipescore/internal/warehouse"
)

// RunState tracks how far a scoring run progressed. It is logged on failure
// so an operator can tell which step to look at.
type RunState string

const (
	StateReceived          RunState = "received"
	StateMappingRefreshed  RunState = "stage_mapping_refreshed"
	StateUnitsScored       RunState = "units_scored"
	StateHistoryAggregated RunState = "history_aggregated"
	StateCompleted         RunState = "completed"
	StateFailed            RunState = "failed"
)

// Processor runs the full scoring sequence for one snapshot: refresh the
// stage mapping rubric, score pipeline units, then aggregate score history.
// Steps run strictly in order; each consumes the previous step's output.
type Processor struct {
	store      warehouse.Store
	reg        *registry.Log
	scorer     *UnitScorer
	aggregator *HistoryAggregator
	entries    []model.StageMappingEntry
	retry      resilience.RetryConfig
	now        func() time.Time
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithMappingEntries overrides the rubric loaded at the start of each run.
func WithMappingEntries(entries []model.StageMappingEntry) ProcessorOption {
	return func(p *Processor) { p.entries = entries }
}

// WithReadiness overrides the unit-partition readiness poll settings.
func WithReadiness(cfg warehouse.ReadinessConfig) ProcessorOption {
	return func(p *Processor) { p.aggregator = NewHistoryAggregator(p.store, cfg) }
}

// WithRetry overrides the retry policy for warehouse writes.
func WithRetry(cfg resilience.RetryConfig) ProcessorOption {
	return func(p *Processor) {
		p.retry = cfg
		p.scorer.retry = cfg
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
		p.scorer.now = now
	}
}

// NewProcessor wires a Processor against store.
func NewProcessor(store warehouse.Store, reg *registry.Log, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:      store,
		reg:        reg,
		scorer:     NewUnitScorer(store),
		aggregator: NewHistoryAggregator(store, warehouse.DefaultReadinessConfig()),
		retry:      resilience.DefaultRetryConfig(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessEvent scores the snapshot named by event. It never panics and never
// returns a Go error: every outcome, success or failure, is reported as a
// ScoreResult so a caller driving many snapshots can keep going.
func (p *Processor) ProcessEvent(ctx context.Context, event model.SnapshotEvent) model.ScoreResult {
	return p.Process(ctx, event.SnapshotID)
}

// Process runs the scoring sequence for one snapshot id.
func (p *Processor) Process(ctx context.Context, snapshotID string) model.ScoreResult {
	start := p.now()
	state := StateReceived
	result := model.ScoreResult{Status: model.ResultError, SnapshotID: snapshotID}

	log := zap.L().With(
		zap.String("component", "scoring"),
		zap.String("snapshot_id", snapshotID),
	)

	fail := func(err error) model.ScoreResult {
		result.Status = model.ResultError
		result.Error = eris.ToString(err, false)
		result.ProcessingTimeSeconds = p.now().Sub(start).Seconds()
		log.Error("scoring run failed",
			zap.String("state", string(state)),
			zap.Error(err),
		)
		p.reg.ScoringFailed(ctx, snapshotID, result.Error)
		return result
	}

	if snapshotID == "" {
		return fail(eris.New("scoring: empty snapshot id"))
	}

	log.Info("scoring run started")
	p.reg.ScoringStarted(ctx, snapshotID)

	entries := p.entries
	if entries == nil {
		entries = DefaultEntries(p.now().UTC())
	}
	mapping, err := NewMapping(entries)
	if err != nil {
		return fail(err)
	}

	cfg := p.retry
	cfg.OnRetry = resilience.RetryLogger("scoring", "replace stage mapping")
	loaded, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int, error) {
		return p.store.ReplaceStageMapping(ctx, mapping.Entries())
	})
	if err != nil {
		return fail(eris.Wrap(err, "scoring: refresh stage mapping"))
	}
	result.StageMapping = loaded
	state = StateMappingRefreshed

	unitsWritten, stats, err := p.scorer.Score(ctx, snapshotID, mapping)
	if err != nil {
		return fail(err)
	}
	result.PipelineUnits = unitsWritten
	state = StateUnitsScored

	historyWritten, err := p.aggregator.Aggregate(ctx, snapshotID, unitsWritten)
	if err != nil {
		return fail(err)
	}
	result.ScoreHistory = historyWritten
	state = StateHistoryAggregated

	result.ProcessedRecords = unitsWritten + historyWritten
	result.ProcessingTimeSeconds = p.now().Sub(start).Seconds()

	notes := fmt.Sprintf(
		"stage_mapping=%d pipeline_units=%d score_history=%d unmapped=%d duration=%.1fs",
		loaded, unitsWritten, historyWritten, stats.UnmappedUnits, result.ProcessingTimeSeconds,
	)
	if err := p.reg.ScoringCompleted(ctx, snapshotID, notes); err != nil {
		return fail(err)
	}
	state = StateCompleted

	result.Status = model.ResultSuccess
	log.Info("scoring run completed",
		zap.String("state", string(state)),
		zap.Int("stage_mapping", loaded),
		zap.Int64("pipeline_units", unitsWritten),
		zap.Int64("score_history", historyWritten),
		zap.Float64("duration_seconds", result.ProcessingTimeSeconds),
	)
	return result
}
