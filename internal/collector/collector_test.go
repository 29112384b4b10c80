package collector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"priceregistry/internal/components/chrono"
	"priceregistry/internal/components/db"
	"priceregistry/internal/components/telemetry/teltest"
	"priceregistry/internal/partition"
	"priceregistry/internal/registry"
	"priceregistry/internal/state"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testSession = registry.Session{
	ViewState:          "vs",
	ViewStateGenerator: "gen",
	EventValidation:    "ev",
	Regions:            []string{"70017", "70025"},
	Filters:            []string{"1", "2", "6"},
}

var subRegions = map[string][]string{
	"70017": {"1001", "1002"},
	"70025": {"2001"},
}

func row(year int, contract, object string) partition.Row {
	return partition.Row{
		ContractID:          contract,
		Date:                fmt.Sprintf("15.06.%d", year),
		ContractType:        "Kupoprodaja",
		ContractDescription: "Promet",
		Price:               "45000",
		Currency:            "EUR",
		ObjectID:            object,
		ObjectCategory:      "Stan",
		Area:                partition.AreaMissing,
		Latitude:            "44.8",
		Longitude:           "20.47",
	}
}

type call struct {
	year      int
	region    string
	subRegion string
}

type fakeSource struct {
	mu    sync.Mutex
	calls []call
	// failures maps a year to the sub-region whose fetch fails
	failures map[int]string
}

func yearOf(start string) int {
	year, err := strconv.Atoi(strings.TrimPrefix(start, "01.01."))
	if err != nil {
		panic(err)
	}
	return year
}

func (f *fakeSource) ResolveSubRegions(_ context.Context, _ registry.Session, start, _, region string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{year: yearOf(start), region: region})
	return subRegions[region], nil
}

func (f *fakeSource) FetchRecords(_ context.Context, _ registry.Session, start, _, region, subRegion string) ([]partition.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	year := yearOf(start)
	f.calls = append(f.calls, call{year: year, region: region, subRegion: subRegion})
	if f.failures[year] == subRegion {
		return nil, &registry.FetchError{Region: region, SubRegion: subRegion, Status: 500, Err: errors.New("boom")}
	}

	// every sub-region reports the same shared contract once
	return []partition.Row{
		row(year, "shared", "1"),
		row(year, "c-"+subRegion, "2"),
	}, nil
}

func (f *fakeSource) callsFor(year int) []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call
	for _, c := range f.calls {
		if c.year == year {
			out = append(out, c)
		}
	}
	return out
}

type env struct {
	layout partition.Layout
	store  state.Store
	source *fakeSource
	years  YearCollector
	tel    *teltest.Recorder
}

func newEnv(t *testing.T) env {
	t.Helper()

	layout := partition.NewLayout(t.TempDir())
	require.NoError(t, layout.Init())

	database, err := db.Config{File: ":memory:"}.Open(state.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	now := chrono.FixedTime(time.Date(2016, 6, 1, 12, 0, 0, 0, chrono.Belgrade()))
	store := state.NewStore(database, now)
	source := &fakeSource{failures: map[int]string{}}
	tel := teltest.NewRecorder(t)

	return env{
		layout: layout,
		store:  store,
		source: source,
		years:  NewYearCollector(source, layout, store, tel),
		tel:    tel,
	}
}

func TestCollectFresh(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.years.Collect(ctx, testSession, 2015))

	expected := []partition.Row{
		row(2015, "shared", "1"),
		row(2015, "c-1001", "2"),
		row(2015, "c-1002", "2"),
		row(2015, "c-2001", "2"),
	}
	rows, err := partition.ReadRows(e.layout.YearPath(2015))
	require.NoError(t, err)
	if diff := cmp.Diff(expected, rows); diff != "" {
		t.Fatal("year partition mismatch:", diff)
	}

	checkpoints, err := e.layout.Checkpoints(2015)
	require.NoError(t, err)
	require.Empty(t, checkpoints)

	completed, total, ok, err := e.layout.Progress(2015)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, completed)
	require.Equal(t, 2, total)

	st, err := e.store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, state.Complete, st.Status)
	require.Equal(t, 4, st.Rows)

	require.Len(t, e.source.callsFor(2015), 5)
}

func TestCollectCommittedYearIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, partition.WriteRows(e.layout.YearPath(2014), []partition.Row{row(2014, "old", "1")}))
	require.NoError(t, e.years.Collect(ctx, testSession, 2014))
	require.Empty(t, e.source.callsFor(2014))

	require.NoError(t, e.years.Collect(ctx, testSession, 2015))
	calls := len(e.source.callsFor(2015))
	require.NoError(t, e.years.Collect(ctx, testSession, 2015))
	require.Len(t, e.source.callsFor(2015), calls)
}

func TestCollectResumesFromCheckpoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// a checkpoint the store never heard of, as left by a crash
	cached := []partition.Row{row(2015, "cached", "9"), row(2015, "shared", "1")}
	require.NoError(t, partition.WriteRows(e.layout.CheckpointPath(2015, "70017"), cached))

	require.NoError(t, e.years.Collect(ctx, testSession, 2015))

	require.Equal(t, []call{
		{year: 2015, region: "70025"},
		{year: 2015, region: "70025", subRegion: "2001"},
	}, e.source.callsFor(2015))

	rows, err := partition.ReadRows(e.layout.YearPath(2015))
	require.NoError(t, err)
	expected := []partition.Row{
		row(2015, "cached", "9"),
		row(2015, "shared", "1"),
		row(2015, "c-2001", "2"),
	}
	if diff := cmp.Diff(expected, rows); diff != "" {
		t.Fatal("year partition mismatch:", diff)
	}
}

func TestCollectFailureKeepsCheckpoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.source.failures[2015] = "2001"
	err := e.years.Collect(ctx, testSession, 2015)

	var yearErr *YearError
	require.ErrorAs(t, err, &yearErr)
	require.Equal(t, 2015, yearErr.Year)
	require.Equal(t, "70025", yearErr.Region)
	require.Equal(t, "2001", yearErr.SubRegion)

	var fetchErr *registry.FetchError
	require.ErrorAs(t, err, &fetchErr)

	committed, err := e.layout.YearExists(2015)
	require.NoError(t, err)
	require.False(t, committed)

	exists, err := e.layout.CheckpointExists(2015, "70017")
	require.NoError(t, err)
	require.True(t, exists)

	st, err := e.store.Get(ctx, 2015)
	require.NoError(t, err)
	require.Equal(t, state.InProgress, st.Status)
	require.Equal(t, 1, st.CompletedRegions)

	delete(e.source.failures, 2015)
	before := len(e.source.callsFor(2015))
	require.NoError(t, e.years.Collect(ctx, testSession, 2015))

	retried := e.source.callsFor(2015)[before:]
	for _, c := range retried {
		require.Equal(t, "70025", c.region)
	}
}

type fakeDownstream struct {
	created  int
	enriched int
	reported int
	failures []YearResult
}

func (f *fakeDownstream) Enrich(context.Context) (int, error) {
	f.enriched++
	return f.created, nil
}

func (f *fakeDownstream) Report(context.Context) error {
	f.reported++
	return nil
}

func (f *fakeDownstream) SendFailures(_ context.Context, results []YearResult) error {
	f.failures = append(f.failures, results...)
	return nil
}

func newCoordinator(e env, downstream *fakeDownstream) Coordinator {
	now := chrono.FixedTime(time.Date(2016, 6, 1, 12, 0, 0, 0, chrono.Belgrade()))
	return NewCoordinator(
		testSession,
		e.years,
		e.layout,
		e.store,
		now,
		downstream,
		downstream,
		downstream,
		e.tel,
		Options{FirstYear: 2013, MaxParallelYears: 2},
	)
}

func TestCollectOldDataIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, partition.WriteRows(e.layout.YearPath(2013), []partition.Row{row(2013, "old", "1")}))
	require.NoError(t, partition.WriteRows(e.layout.ConsolidatedPath(), nil))
	e.source.failures[2015] = "1002"

	downstream := &fakeDownstream{created: 2}
	updated, err := newCoordinator(e, downstream).CollectOldData(ctx)
	require.NoError(t, err)
	require.True(t, updated)

	require.Empty(t, e.source.callsFor(2013))
	for _, year := range []int{2013, 2014, 2016} {
		committed, err := e.layout.YearExists(year)
		require.NoError(t, err)
		require.True(t, committed, year)
	}
	committed, err := e.layout.YearExists(2015)
	require.NoError(t, err)
	require.False(t, committed)

	require.Len(t, downstream.failures, 1)
	require.Equal(t, 2015, downstream.failures[0].Year)
	require.Equal(t, 1, downstream.enriched)
	require.Equal(t, 1, downstream.reported)

	_, err = partition.ReadRows(e.layout.ConsolidatedPath())
	require.Error(t, err)

	run, ok, err := e.store.LastRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, RunBackfill, run.Kind)
	require.Equal(t, 2, run.YearsOk)
	require.Equal(t, 1, run.YearsFailed)

	require.NotEmpty(t, e.tel.Broken(report_coordinator_year_failed))
}

func TestCollectOldDataNothingMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for year := 2013; year <= 2016; year++ {
		require.NoError(t, partition.WriteRows(e.layout.YearPath(year), nil))
	}

	downstream := &fakeDownstream{}
	updated, err := newCoordinator(e, downstream).CollectOldData(ctx)
	require.NoError(t, err)
	require.False(t, updated)
	require.Empty(t, e.source.calls)
	require.Equal(t, 1, downstream.enriched)
	require.Equal(t, 0, downstream.reported)
}

func TestMissingYearsResetsDiscardedYears(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.years.Collect(ctx, testSession, 2014))
	require.NoError(t, e.layout.RemoveYear(2014))

	missing, err := newCoordinator(e, &fakeDownstream{}).MissingYears(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2013, 2014, 2015, 2016}, missing)

	st, err := e.store.Get(ctx, 2014)
	require.NoError(t, err)
	require.Equal(t, state.NotStarted, st.Status)
}

func TestUpdateData(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, partition.WriteRows(e.layout.YearPath(2016), []partition.Row{row(2016, "stale", "1")}))
	require.NoError(t, partition.WriteRows(e.layout.CheckpointPath(2016, "70017"), []partition.Row{row(2016, "stale", "1")}))

	downstream := &fakeDownstream{}
	require.NoError(t, newCoordinator(e, downstream).UpdateData(ctx))

	rows, err := partition.ReadRows(e.layout.YearPath(2016))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, r := range rows {
		require.NotEqual(t, "stale", r.ContractID)
	}
	require.Len(t, e.source.callsFor(2016), 5)
	require.Equal(t, 1, downstream.enriched)
	require.Equal(t, 1, downstream.reported)
}

func TestUpdateDataFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.source.failures[2016] = "1001"
	downstream := &fakeDownstream{}
	err := newCoordinator(e, downstream).UpdateData(ctx)

	var yearErr *YearError
	require.ErrorAs(t, err, &yearErr)
	require.Equal(t, 2016, yearErr.Year)
	require.Len(t, downstream.failures, 1)
	require.Equal(t, 0, downstream.enriched)
}

func TestYearErrorMessage(t *testing.T) {
	table := []struct {
		input    *YearError
		expected string
	}{
		{
			input:    &YearError{Year: 2015, Err: errors.New("disk full")},
			expected: "year 2015: disk full",
		},
		{
			input:    &YearError{Year: 2015, Region: "70017", SubRegion: "1001", Err: errors.New("boom")},
			expected: "year 2015 region 70017 sub-region 1001: boom",
		},
	}
	for _, test := range table {
		require.Equal(t, test.expected, test.input.Error())
	}
}
