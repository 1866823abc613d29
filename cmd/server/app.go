package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/warp/compliance-engine/config"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/logging"
	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/store/sqlite"
	"github.com/warp/compliance-engine/vehicle"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *sqlite.Store
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	engine     *lifecycle.Engine
	reconciler *lifecycle.Reconciler
	aggregator *lifecycle.Aggregator
}

// newApp loads config and wires store, engine and metrics. The caller
// must call close.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	thresholds, err := cfg.ThresholdTable()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	engine := lifecycle.NewEngine(store, thresholds,
		lifecycle.WithLogger(logger.Named("engine")),
		lifecycle.WithObserver(m),
		lifecycle.WithKeyNormalizer(vehicle.NormalizeRegistration),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		registry:   registry,
		metrics:    m,
		engine:     engine,
		reconciler: lifecycle.NewReconciler(store, thresholds, logger.Named("sweep"), m),
		aggregator: lifecycle.NewAggregator(store),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
