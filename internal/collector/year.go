package collector

import (
	"context"
	"fmt"

	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/partition"
	"priceregistry/internal/registry"
	"priceregistry/internal/state"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_year_checkpoint_heal = "year.checkpoint-heal"
	report_year_region_done     = "year.region-done"
	report_year_commit          = "year.commit"
	report_year_metrics         = "year.metrics"
)

// Source is the part of the registry a year collection talks to.
type Source interface {
	ResolveSubRegions(ctx context.Context, session registry.Session, start, end, region string) ([]string, error)
	FetchRecords(ctx context.Context, session registry.Session, start, end, region, subRegion string) ([]partition.Row, error)
}

// YearCollector collects every region of a single year. Regions and their
// sub-regions are fetched one after the other, separate years may be
// collected concurrently since they never share a file.
type YearCollector struct {
	source  Source
	layout  partition.Layout
	store   state.Store
	tel     telemetry.API
	metrics instruments
}

func NewYearCollector(source Source, layout partition.Layout, store state.Store, tel telemetry.API) YearCollector {
	assert.NotNil(source)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("collector", tel)

	metrics, err := newInstruments()
	if err != nil {
		tel.ReportBroken(report_year_metrics, err)
	}

	return YearCollector{
		source:  source,
		layout:  layout,
		store:   store,
		tel:     tel,
		metrics: metrics,
	}
}

// Collect brings year to COMPLETE. A year whose partition file exists is left
// alone without any request. Regions with a checkpoint on disk are loaded
// from it, the rest are fetched and checkpointed. The partition file is only
// written once every region is done.
func (c YearCollector) Collect(ctx context.Context, session registry.Session, year int) (err error) {
	ctx, span := tracer.Start(ctx, "Collect", trace.WithAttributes(attribute.Int("year", year)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	committed, err := c.layout.YearExists(year)
	if err != nil {
		return &YearError{Year: year, Err: err}
	}
	if committed {
		c.tel.ReportDebug("year already committed", "year", year)
		return nil
	}

	total := len(session.Regions)
	err = c.store.BeginYear(ctx, year, total)
	if err != nil {
		return &YearError{Year: year, Err: err}
	}

	start, end := registry.YearRange(year)
	var rows []partition.Row
	for _, region := range session.Regions {
		regionRows, err := c.collectRegion(ctx, session, year, start, end, region)
		if err != nil {
			return err
		}
		rows = append(rows, regionRows...)
	}

	deduped := partition.Dedup(rows)
	err = partition.WriteRows(c.layout.YearPath(year), deduped)
	if err != nil {
		return &YearError{Year: year, Err: err}
	}
	err = c.store.CompleteYear(ctx, year, total, len(deduped))
	if err != nil {
		return &YearError{Year: year, Err: err}
	}
	err = c.layout.ClearCheckpoints(year)
	if err != nil {
		return &YearError{Year: year, Err: err}
	}

	c.tel.ReportDebug(
		"committed year",
		"year", year,
		"rows", len(deduped),
		"duplicates", len(rows)-len(deduped),
	)
	c.tel.ReportCount(report_year_commit, int64(len(deduped)))
	c.metrics.yearsCommitted.Add(ctx, 1)
	return nil
}

// collectRegion returns the rows of region for year, either from its
// checkpoint or from the registry.
func (c YearCollector) collectRegion(ctx context.Context, session registry.Session, year int, start, end, region string) ([]partition.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, &YearError{Year: year, Region: region, Err: err}
	}

	checkpoint := c.layout.CheckpointPath(year, region)
	cached, err := c.layout.CheckpointExists(year, region)
	if err != nil {
		return nil, &YearError{Year: year, Region: region, Err: err}
	}
	if cached {
		rows, err := partition.ReadRows(checkpoint)
		if err != nil {
			return nil, &YearError{Year: year, Region: region, Err: err}
		}
		// a crash between the checkpoint rename and the store update leaves
		// a checkpoint the store does not know about
		recorded, err := c.store.HasRegion(ctx, year, region)
		if err != nil {
			return nil, &YearError{Year: year, Region: region, Err: err}
		}
		if !recorded {
			c.tel.ReportWarning(report_year_checkpoint_heal, "year", year, "region", region)
			_, err = c.store.RecordRegion(ctx, year, region, len(rows))
			if err != nil {
				return nil, &YearError{Year: year, Region: region, Err: err}
			}
		}
		c.tel.ReportDebug("loaded checkpoint", "year", year, "region", region, "rows", len(rows))
		return rows, nil
	}

	ctx, span := tracer.Start(ctx, "CollectRegion", trace.WithAttributes(
		attribute.Int("year", year),
		attribute.String("region", region),
	))
	defer span.End()

	subRegions, err := c.source.ResolveSubRegions(ctx, session, start, end, region)
	if err != nil {
		span.RecordError(err)
		return nil, &YearError{Year: year, Region: region, Err: err}
	}

	var rows []partition.Row
	for _, subRegion := range subRegions {
		fetched, err := c.source.FetchRecords(ctx, session, start, end, region, subRegion)
		if err != nil {
			span.RecordError(err)
			return nil, &YearError{Year: year, Region: region, SubRegion: subRegion, Err: err}
		}
		c.metrics.rowsFetched.Add(ctx, int64(len(fetched)), metric.WithAttributes(attribute.Int("year", year)))
		rows = append(rows, fetched...)
	}

	err = partition.WriteRows(checkpoint, rows)
	if err != nil {
		return nil, &YearError{Year: year, Region: region, Err: err}
	}
	completed, err := c.store.RecordRegion(ctx, year, region, len(rows))
	if err != nil {
		return nil, &YearError{Year: year, Region: region, Err: err}
	}
	err = c.layout.WriteProgress(year, completed, len(session.Regions))
	if err != nil {
		return nil, &YearError{Year: year, Region: region, Err: err}
	}

	c.tel.ReportDebug(
		"fetched region",
		"year", year,
		"region", region,
		"sub_regions", len(subRegions),
		"rows", len(rows),
		"progress", fmt.Sprintf("%d/%d", completed, len(session.Regions)),
	)
	c.tel.ReportCount(report_year_region_done, int64(len(rows)))
	return rows, nil
}
