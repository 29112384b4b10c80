package collector

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/chrono"
	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/partition"
	"priceregistry/internal/registry"
	"priceregistry/internal/state"

	"golang.org/x/sync/errgroup"
)

const (
	report_coordinator_year_failed = "coordinator.year-failed"
	report_coordinator_year_panic  = "coordinator.year-panic"
	report_coordinator_enrich      = "coordinator.enrich"
	report_coordinator_report      = "coordinator.report"
	report_coordinator_notify      = "coordinator.notify"
	report_coordinator_run_log     = "coordinator.run-log"
)

const (
	RunBackfill = "backfill"
	RunUpdate   = "update"
)

// Enricher geocodes the committed partitions and returns how many new
// outputs it produced.
type Enricher interface {
	Enrich(ctx context.Context) (int, error)
}

// Reporter merges the enriched outputs into the consolidated report.
type Reporter interface {
	Report(ctx context.Context) error
}

// Notifier is told about the years that failed in a run.
type Notifier interface {
	SendFailures(ctx context.Context, results []YearResult) error
}

type Options struct {
	// FirstYear is the earliest year the registry publishes.
	FirstYear int
	// MaxParallelYears caps how many years are collected at the same time.
	MaxParallelYears int
}

// Coordinator decides which years are missing, collects them concurrently
// and hands the result to the downstream steps.
type Coordinator struct {
	session  registry.Session
	years    YearCollector
	layout   partition.Layout
	store    state.Store
	time     chrono.TimeAPI
	enricher Enricher
	reporter Reporter
	notifier Notifier
	tel      telemetry.API
	opts     Options
}

func NewCoordinator(
	session registry.Session,
	years YearCollector,
	layout partition.Layout,
	store state.Store,
	time chrono.TimeAPI,
	enricher Enricher,
	reporter Reporter,
	notifier Notifier,
	tel telemetry.API,
	opts Options,
) Coordinator {
	assert.NotNil(time)
	assert.NotNil(enricher)
	assert.NotNil(reporter)
	assert.NotNil(notifier)
	assert.NotNil(tel)
	assert.Positive(opts.FirstYear)
	assert.Positive(opts.MaxParallelYears)

	return Coordinator{
		session:  session,
		years:    years,
		layout:   layout,
		store:    store,
		time:     time,
		enricher: enricher,
		reporter: reporter,
		notifier: notifier,
		tel:      telemetry.NewScopedAPI("coordinator", tel),
		opts:     opts,
	}
}

// MissingYears reconciles every year from the first published one through
// the current one with the disk and returns those not yet committed.
func (c Coordinator) MissingYears(ctx context.Context) ([]int, error) {
	var missing []int
	for year := c.opts.FirstYear; year <= c.time.Now().Year(); year++ {
		committed, err := c.layout.YearExists(year)
		if err != nil {
			return nil, err
		}
		st, err := c.store.Reconcile(ctx, year, committed)
		if err != nil {
			return nil, err
		}
		if st.Status != state.Complete {
			missing = append(missing, year)
		}
	}
	return missing, nil
}

// Backfill collects years with at most MaxParallelYears in flight. A failing
// year never cancels the others, each outcome is returned in the order of
// years.
func (c Coordinator) Backfill(ctx context.Context, years []int) []YearResult {
	results := make([]YearResult, len(years))

	var group errgroup.Group
	group.SetLimit(c.opts.MaxParallelYears)
	for i, year := range years {
		group.Go(func() error {
			results[i] = c.collectYear(ctx, year)
			return nil
		})
	}
	_ = group.Wait()

	return results
}

func (c Coordinator) collectYear(ctx context.Context, year int) (result YearResult) {
	result.Year = year
	defer func() {
		if r := recover(); r != nil {
			c.tel.ReportBroken(report_coordinator_year_panic, "year", year, "panic", r)
			result.Err = &YearError{Year: year, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result.Err = c.years.Collect(ctx, c.session, year)
	if result.Err != nil {
		c.tel.ReportBroken(report_coordinator_year_failed, result.Err, "year", year)
		c.years.metrics.yearsFailed.Add(ctx, 1)
		return result
	}

	st, err := c.store.Get(ctx, year)
	if err == nil {
		result.Rows = st.Rows
	}
	return result
}

// CollectOldData collects every missing year then runs enrichment over all
// committed years and rebuilds the report if enrichment produced anything
// new. It returns whether any year had to be collected. Failed years are
// reported, they do not make CollectOldData fail.
func (c Coordinator) CollectOldData(ctx context.Context) (bool, error) {
	runID, err := c.store.StartRun(ctx, RunBackfill)
	if err != nil {
		return false, err
	}

	missing, err := c.MissingYears(ctx)
	if err != nil {
		return false, err
	}
	if len(missing) == 0 {
		c.tel.ReportDebug("no missing years")
	} else {
		c.tel.ReportDebug("collecting missing years", "years", missing)
	}

	results := c.Backfill(ctx, missing)
	c.finishRun(ctx, runID, results)

	err = fatalResult(results)
	if err != nil {
		return len(missing) > 0, err
	}

	err = c.layout.RemoveConsolidated()
	if err != nil {
		return len(missing) > 0, err
	}

	created, err := c.enricher.Enrich(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_enrich, err)
		return len(missing) > 0, fmt.Errorf("enrich: %w", err)
	}
	if created > 0 {
		err = c.reporter.Report(ctx)
		if err != nil {
			c.tel.ReportBroken(report_coordinator_report, err)
			return len(missing) > 0, fmt.Errorf("report: %w", err)
		}
	}

	return len(missing) > 0, nil
}

// UpdateData discards the current year and collects it again from scratch,
// then re-runs enrichment and the report.
func (c Coordinator) UpdateData(ctx context.Context) error {
	year := c.time.Now().Year()
	c.tel.ReportDebug("updating year", "year", year)

	runID, err := c.store.StartRun(ctx, RunUpdate)
	if err != nil {
		return err
	}

	err = c.layout.RemoveYear(year)
	if err != nil {
		return err
	}
	err = c.layout.ClearCheckpoints(year)
	if err != nil {
		return err
	}
	err = c.store.ResetYear(ctx, year)
	if err != nil {
		return err
	}

	results := c.Backfill(ctx, []int{year})
	c.finishRun(ctx, runID, results)
	if !results[0].Ok() {
		return results[0].Err
	}

	_, err = c.enricher.Enrich(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_enrich, err)
		return fmt.Errorf("enrich: %w", err)
	}
	err = c.reporter.Report(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_report, err)
		return fmt.Errorf("report: %w", err)
	}

	c.tel.ReportDebug("updated year", "year", year, "rows", results[0].Rows)
	return nil
}

func (c Coordinator) finishRun(ctx context.Context, runID string, results []YearResult) {
	var failed []YearResult
	for _, r := range results {
		if !r.Ok() {
			failed = append(failed, r)
		}
	}

	err := c.store.FinishRun(ctx, runID, len(results)-len(failed), len(failed))
	if err != nil {
		c.tel.ReportBroken(report_coordinator_run_log, err, "run", runID)
	}

	if len(failed) == 0 {
		return
	}
	err = c.notifier.SendFailures(ctx, failed)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_notify, err)
	}
}

// fatalResult returns the first failure caused by the data root itself.
// Those are not isolated to a year.
func fatalResult(results []YearResult) error {
	idx := slices.IndexFunc(results, func(r YearResult) bool {
		var fsErr *partition.FilesystemError
		return errors.As(r.Err, &fsErr)
	})
	if idx < 0 {
		return nil
	}
	return results[idx].Err
}
