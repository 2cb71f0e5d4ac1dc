package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipescore/internal/model"
)

func seedUnits(t *testing.T, s *SQLiteStore, snapshotID string, n int) {
	t.Helper()
	units := make([]model.PipelineUnit, n)
	for i := range units {
		units[i] = model.PipelineUnit{
			SnapshotID:      snapshotID,
			CompanyID:       string(rune('a' + i)),
			OwnerID:         "o1",
			CombinedStage:   "lead/new",
			StageSource:     model.SourceCompany,
			RecordTimestamp: time.Now().UTC(),
		}
	}
	_, err := s.ReplaceUnits(context.Background(), snapshotID, units)
	require.NoError(t, err)
}

func TestWaitForUnitsStableCount(t *testing.T) {
	s := newTestSQLite(t)
	seedUnits(t, s, "snap-1", 3)

	cfg := ReadinessConfig{
		MinRows:      3,
		Interval:     time.Millisecond,
		StableChecks: 2,
		Timeout:      time.Second,
	}
	count, err := WaitForUnits(context.Background(), s, "snap-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestWaitForUnitsZeroMinRowsMeansNonEmpty(t *testing.T) {
	s := newTestSQLite(t)
	seedUnits(t, s, "snap-1", 1)

	cfg := ReadinessConfig{
		Interval:     time.Millisecond,
		StableChecks: 2,
		Timeout:      time.Second,
	}
	count, err := WaitForUnits(context.Background(), s, "snap-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestWaitForUnitsTimeout(t *testing.T) {
	s := newTestSQLite(t)

	cfg := ReadinessConfig{
		MinRows:      5,
		Interval:     time.Millisecond,
		StableChecks: 2,
		Timeout:      20 * time.Millisecond,
	}
	count, err := WaitForUnits(context.Background(), s, "snap-empty", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	assert.Equal(t, int64(0), count)
}

func TestWaitForUnitsCanceled(t *testing.T) {
	s := newTestSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := ReadinessConfig{
		MinRows:      1,
		Interval:     50 * time.Millisecond,
		StableChecks: 2,
		Timeout:      time.Minute,
	}
	_, err := WaitForUnits(ctx, s, "snap-empty", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestReadinessConfigDefaults(t *testing.T) {
	cfg := ReadinessConfig{}.withDefaults()
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 2, cfg.StableChecks)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
