package warehouse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadinessConfig controls the poll loop that confirms a snapshot's unit
// partition is fully readable before a downstream aggregation consumes it.
type ReadinessConfig struct {
	// MinRows is the row count the partition must reach. Zero means any
	// non-empty partition qualifies.
	MinRows int64

	// Interval between polls. Default: 1s.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// StableChecks is the number of consecutive polls that must return the
	// same qualifying count. Default: 2.
	StableChecks int `yaml:"stable_checks" mapstructure:"stable_checks"`

	// Timeout bounds the whole wait. Default: 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultReadinessConfig returns the poll settings used in production.
func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{
		Interval:     time.Second,
		StableChecks: 2,
		Timeout:      30 * time.Second,
	}
}

func (c ReadinessConfig) withDefaults() ReadinessConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.StableChecks <= 0 {
		c.StableChecks = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// WaitForUnits polls the unit count for snapshotID until it reaches
// cfg.MinRows and holds steady for cfg.StableChecks consecutive polls, then
// returns the observed count. It replaces a fixed post-write sleep: the loop
// returns as soon as the partition is settled instead of always paying the
// worst-case delay.
func WaitForUnits(ctx context.Context, st Store, snapshotID string, cfg ReadinessConfig) (int64, error) {
	cfg = cfg.withDefaults()
	minRows := cfg.MinRows
	if minRows <= 0 {
		minRows = 1
	}

	log := zap.L().With(
		zap.String("component", "warehouse"),
		zap.String("snapshot_id", snapshotID),
	)

	deadline := time.Now().Add(cfg.Timeout)
	var lastCount int64 = -1
	stable := 0

	for {
		count, err := st.CountUnits(ctx, snapshotID)
		if err != nil {
			return 0, eris.Wrapf(err, "warehouse: readiness poll for snapshot %s", snapshotID)
		}

		if count >= minRows && count == lastCount {
			stable++
			if stable >= cfg.StableChecks-1 {
				return count, nil
			}
		} else {
			stable = 0
		}
		lastCount = count

		if time.Now().After(deadline) {
			return count, eris.Errorf(
				"warehouse: snapshot %s not ready after %s (last count %d, want >= %d)",
				snapshotID, cfg.Timeout, count, minRows,
			)
		}

		log.Debug("waiting for unit partition",
			zap.Int64("count", count),
			zap.Int64("min_rows", minRows),
		)

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return count, eris.Wrap(ctx.Err(), "warehouse: readiness wait canceled")
		case <-timer.C:
		}
	}
}
