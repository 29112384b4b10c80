package collector

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	tracer = otel.Tracer("priceregistry.collector")
	meter  = otel.Meter("priceregistry.collector")
)

type instruments struct {
	rowsFetched    metric.Int64Counter
	yearsCommitted metric.Int64Counter
	yearsFailed    metric.Int64Counter
}

func newInstruments() (instruments, error) {
	var (
		out instruments
		err error
	)
	out.rowsFetched, err = meter.Int64Counter(
		"priceregistry.rows_fetched",
		metric.WithDescription("Rows returned by the registry data endpoint."),
	)
	if err != nil {
		return noopInstruments(), err
	}
	out.yearsCommitted, err = meter.Int64Counter(
		"priceregistry.years_committed",
		metric.WithDescription("Years whose partition file was committed."),
	)
	if err != nil {
		return noopInstruments(), err
	}
	out.yearsFailed, err = meter.Int64Counter(
		"priceregistry.years_failed",
		metric.WithDescription("Years whose collection stopped with an error."),
	)
	if err != nil {
		return noopInstruments(), err
	}
	return out, nil
}

func noopInstruments() instruments {
	m := noop.Meter{}
	rows, _ := m.Int64Counter("")
	committed, _ := m.Int64Counter("")
	failed, _ := m.Int64Counter("")
	return instruments{rowsFetched: rows, yearsCommitted: committed, yearsFailed: failed}
}
