package state

import (
	"context"
	"testing"
	"time"

	"priceregistry/internal/components/chrono"
	"priceregistry/internal/components/db"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	database, err := db.Config{File: ":memory:"}.Open(Schema)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, chrono.Belgrade())
	return NewStore(database, chrono.FixedTime(now))
}

func TestYearLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st, err := store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, NotStarted, st.Status)

	require.NoError(t, store.BeginYear(ctx, 2015, 3))
	st, err = store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, InProgress, st.Status)
	require.Equal(t, 0, st.CompletedRegions)
	require.Equal(t, 3, st.TotalRegions)

	completed, err := store.RecordRegion(ctx, 2015, "70017", 12)
	require.NoError(t, err)
	require.Equal(t, 1, completed)
	// recording the same region twice does not double count
	completed, err = store.RecordRegion(ctx, 2015, "70017", 12)
	require.NoError(t, err)
	require.Equal(t, 1, completed)
	completed, err = store.RecordRegion(ctx, 2015, "70025", 3)
	require.NoError(t, err)
	require.Equal(t, 2, completed)

	has, err := store.HasRegion(ctx, 2015, "70025")
	require.NoError(t, err)
	require.True(t, has)

	st, err = store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, 2, st.CompletedRegions)
	require.Equal(t, 15, st.Rows)

	// restarting a year keeps the regions already recorded
	require.NoError(t, store.BeginYear(ctx, 2015, 3))
	st, err = store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, 2, st.CompletedRegions)

	require.NoError(t, store.CompleteYear(ctx, 2015, 3, 14))
	st, err = store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, Complete, st.Status)
	require.Equal(t, 3, st.CompletedRegions)
	require.Equal(t, 14, st.Rows)

	has, err = store.HasRegion(ctx, 2015, "70025")
	require.NoError(t, err)
	require.False(t, has)
}

func TestReconcile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// a partition file found on disk makes the year complete
	st, err := store.Reconcile(ctx, 2013, true)
	require.NoError(t, err)
	require.Equal(t, Complete, st.Status)

	// a missing partition file resets a complete year
	st, err = store.Reconcile(ctx, 2013, false)
	require.NoError(t, err)
	require.Equal(t, NotStarted, st.Status)
	st, err = store.Get(ctx, 2013)
	require.NoError(t, err)
	require.Equal(t, NotStarted, st.Status)

	// an in progress year without a partition file is left alone
	require.NoError(t, store.BeginYear(ctx, 2014, 5))
	_, err = store.RecordRegion(ctx, 2014, "1", 1)
	require.NoError(t, err)
	st, err = store.Reconcile(ctx, 2014, false)
	require.NoError(t, err)
	require.Equal(t, InProgress, st.Status)
	require.Equal(t, 1, st.CompletedRegions)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 2014, all[0].Year)
}

func TestRunLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LastRun(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	id, err := store.StartRun(ctx, "backfill")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, store.FinishRun(ctx, id, 3, 1))

	run, ok, err := store.LastRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, run.ID)
	require.Equal(t, "backfill", run.Kind)
	require.Equal(t, 3, run.YearsOk)
	require.Equal(t, 1, run.YearsFailed)
	require.False(t, run.FinishedAt.IsZero())
}
