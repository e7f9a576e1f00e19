// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Exporter owns the metric registry, the collection loop and the scrape
// server for one Snowflake account.
type Exporter struct {
	logger    *zap.Logger
	config    *Config
	registry  *Registry
	gatherer  *prometheus.Registry
	scraper   *snowflakeScraper
	scheduler *Scheduler
	server    *http.Server
}

// NewExporter validates config and the query catalog and wires every
// component. It does not touch the network.
func NewExporter(logger *zap.Logger, config *Config) (*Exporter, error) {
	return newExporter(logger, config, newSnowflakeConnector(logger, config), DefaultCatalog())
}

func newExporter(logger *zap.Logger, config *Config, connector Connector, catalog []CatalogEntry) (*Exporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateCatalog(catalog); err != nil {
		return nil, &ConfigError{Err: err}
	}

	defs := make([]MetricDefinition, 0, len(catalog))
	for _, e := range catalog {
		defs = append(defs, e.Metric)
	}
	registry, err := NewRegistry(defs)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	gatherer := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		registry,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := gatherer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	self := newSelfMetrics()
	if err := self.register(gatherer); err != nil {
		return nil, fmt.Errorf("failed to register self-monitoring metrics: %w", err)
	}

	scraper := newSnowflakeScraper(logger, config, connector, catalog, registry, self)

	return &Exporter{
		logger:    logger,
		config:    config,
		registry:  registry,
		gatherer:  gatherer,
		scraper:   scraper,
		scheduler: newScheduler(logger, scraper, config.GetInterval()),
		server:    newServer(logger, config.GetListenAddress(), gatherer),
	}, nil
}

// Registry returns the warehouse metric registry.
func (e *Exporter) Registry() *Registry {
	return e.registry
}

// Gatherer returns everything the scrape endpoint serves.
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return e.gatherer
}

// Run listens on the configured port, then runs the collection loop until
// ctx is cancelled. A serve failure stops the loop and ends Run with an
// error.
func (e *Exporter) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.server.Addr, err)
	}
	return e.serve(ctx, ln)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener) error {
	e.logger.Info("Exporter running",
		zap.String("address", ln.Addr().String()),
		zap.String("dsn", e.config.SanitizedDSN()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.server.Serve(ln)
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		e.scheduler.Run(loopCtx)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("metrics server failed: %w", err)
		}
		// A running cycle finishes before the loop observes the cancel.
		stopLoop()
		<-loopDone
	case <-loopDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn("Failed to shut down metrics server", zap.Error(err))
	}
	return runErr
}
