package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipescore/internal/model"
	"github.com/sells-group/pipescore/internal/warehouse"
)

func newTestLog(t *testing.T) (*Log, warehouse.Store) {
	t.Helper()
	store, err := warehouse.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return New(store), store
}

func TestScoringLifecycleTrail(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	log.ScoringStarted(ctx, "snap-1")
	require.NoError(t, log.ScoringCompleted(ctx, "snap-1", "pipeline_units=12"))

	trail, err := log.ForSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.StatusScoringStarted, trail[0].Status)
	assert.Equal(t, model.StatusScoringCompleted, trail[1].Status)
	assert.Equal(t, model.TriggerScoring, trail[1].TriggeredBy)
	assert.Equal(t, "pipeline_units=12", trail[1].Notes)
}

func TestScoringFailedRecordsCause(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	log.ScoringStarted(ctx, "snap-1")
	log.ScoringFailed(ctx, "snap-1", "snapshot snap-1 has no companies")

	trail, err := log.ForSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.StatusScoringFailed, trail[1].Status)
	assert.Contains(t, trail[1].Notes, "no companies")
}

func TestLatest(t *testing.T) {
	log, store := newTestLog(t)
	ctx := context.Background()

	e, err := log.Latest(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, e)

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendRegistryEntry(ctx, model.RegistryEntry{
		SnapshotID: "snap-1", RecordTimestamp: base,
		TriggeredBy: model.TriggerIngest, Status: model.StatusIngestCompleted,
	}))
	require.NoError(t, store.AppendRegistryEntry(ctx, model.RegistryEntry{
		SnapshotID: "snap-2", RecordTimestamp: base.Add(time.Hour),
		TriggeredBy: model.TriggerIngest, Status: model.StatusIngestStarted,
	}))

	e, err = log.Latest(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "snap-2", e.SnapshotID)

	status := model.StatusIngestCompleted
	e, err = log.Latest(ctx, &status)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "snap-1", e.SnapshotID)
}

func TestCompletedIngestSnapshotsChronological(t *testing.T) {
	log, store := newTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of order; discovery sorts by earliest completion.
	for _, e := range []struct {
		id     string
		offset time.Duration
	}{
		{"snap-b", 2 * time.Hour},
		{"snap-a", time.Hour},
		{"snap-c", 3 * time.Hour},
	} {
		require.NoError(t, store.AppendRegistryEntry(ctx, model.RegistryEntry{
			SnapshotID: e.id, RecordTimestamp: base.Add(e.offset),
			TriggeredBy: model.TriggerIngest, Status: model.StatusIngestCompleted,
		}))
	}

	ids, err := log.CompletedIngestSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-a", "snap-b", "snap-c"}, ids)
}

func TestLatestCompletedIngest(t *testing.T) {
	log, store := newTestLog(t)
	ctx := context.Background()

	_, err := log.LatestCompletedIngest(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completed ingest snapshots")

	require.NoError(t, store.AppendRegistryEntry(ctx, model.RegistryEntry{
		SnapshotID: "snap-1", RecordTimestamp: time.Now().UTC(),
		TriggeredBy: model.TriggerIngest, Status: model.StatusIngestCompleted,
	}))

	id, err := log.LatestCompletedIngest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", id)
}
