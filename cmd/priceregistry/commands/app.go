package commands

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"priceregistry/internal/collector"
	"priceregistry/internal/components/chrono"
	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/downstream"
	"priceregistry/internal/notify"
	"priceregistry/internal/partition"
	"priceregistry/internal/registry"
	"priceregistry/internal/state"
)

const (
	report_app_otel_shutdown = "app.otel-shutdown"
	report_app_db_close      = "app.db-close"
)

// app holds everything a command needs, built from the config.
type app struct {
	cfg    Config
	tel    telemetry.API
	time   chrono.TimeAPI
	otel   telemetry.Otel
	db     *sql.DB
	layout partition.Layout
	store  state.Store
}

func setup(ctx context.Context) app {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal("failed to read config", err)
	}

	otel, err := telemetry.Setup(ctx, "priceregistry", cfg.Telemetry)
	if err != nil {
		fatal("failed to setup telemetry", err)
	}
	if verbose {
		telemetry.InstrumentPerfStats(ctx)
	}

	layout := partition.NewLayout(cfg.DataDir)
	err = layout.Init()
	if err != nil {
		fatal("failed to create data directory", err)
	}

	database, err := cfg.State.Open(state.Schema)
	if err != nil {
		fatal("failed to open state db", err)
	}

	now := chrono.NewStandardTime()
	return app{
		cfg:    cfg,
		tel:    telemetry.SlogAPI{},
		time:   now,
		otel:   otel,
		db:     database,
		layout: layout,
		store:  state.NewStore(database, now),
	}
}

func (a app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err := a.otel.Shutdown(ctx)
	if err != nil {
		a.tel.ReportBroken(report_app_otel_shutdown, err)
	}
	err = a.db.Close()
	if err != nil {
		a.tel.ReportBroken(report_app_db_close, err)
	}
}

// coordinator acquires the session and wires the collection pipeline. A
// session that cannot be acquired ends the process.
func (a app) coordinator(ctx context.Context) collector.Coordinator {
	client, err := registry.NewClient(registry.Options{
		BaseUrl:           a.cfg.Registry.BaseUrl,
		Timeout:           time.Duration(a.cfg.Registry.TimeoutSeconds) * time.Second,
		RequestsPerSecond: a.cfg.Registry.RequestsPerSecond,
		CloudflareBypass:  a.cfg.Registry.CloudflareBypass,
		DumpDir:           a.cfg.Registry.DumpDir,
	}, a.tel)
	if err != nil {
		fatal("failed to create registry client", err)
	}

	session, err := client.AcquireSession(ctx)
	if err != nil {
		fatal("failed to acquire registry session", err)
	}

	return collector.NewCoordinator(
		session,
		collector.NewYearCollector(client, a.layout, a.store, a.tel),
		a.layout,
		a.store,
		a.time,
		downstream.NewEnricher(a.cfg.Enrich.Command, a.layout, a.tel),
		downstream.NewReporter(a.cfg.Report.Command, a.layout, a.tel),
		notify.NewMailer(a.cfg.Notify.Smtp, a.tel),
		a.tel,
		collector.Options{
			FirstYear:        a.cfg.Collector.FirstYear,
			MaxParallelYears: a.cfg.Collector.MaxParallelYears,
		},
	)
}

// checkFatal ends the process on errors that are not isolated to a year.
func checkFatal(message string, err error) {
	var fsErr *partition.FilesystemError
	if errors.As(err, &fsErr) {
		fatal(message, err)
	}
}
