package main

import (
	"context"
	"fmt"
	"time"

	"media-compressor/internal/catalog"
	"media-compressor/internal/logging"
	"media-compressor/internal/pipeline"
	"media-compressor/internal/settings"
	"media-compressor/internal/startup"
	"media-compressor/internal/transcoder"
)

// app holds what every catalog-backed command needs.
type app struct {
	config  *startup.Config
	store   *settings.Store
	catalog *catalog.Catalog
	runner  *transcoder.ExecRunner
	ctrl    *pipeline.Controller
}

// openApp opens the catalog and builds the controller. Background
// operations of the controller run under ctx.
func openApp(ctx context.Context, config *startup.Config) (*app, error) {
	start := time.Now()
	cat, err := catalog.Open(ctx, config.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	records := 0
	if stats, err := cat.GetStats(); err == nil {
		records = stats.TotalRecords
	}
	startup.LogCatalogInit(time.Since(start), records)

	a := &app{
		config:  config,
		store:   settings.NewStore(config.SettingsPath),
		catalog: cat,
		runner:  transcoder.NewExecRunner(),
	}
	a.ctrl = pipeline.New(ctx, pipeline.Options{
		Catalog:  a.catalog,
		Settings: a.store,
		Runner:   a.runner,
	})
	return a, nil
}

func (a *app) Close() {
	a.runner.Cleanup()
	if err := a.catalog.Close(); err != nil {
		logging.Warn("Failed to close catalog: %v", err)
	}
}
