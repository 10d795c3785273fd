package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/selfenc-go/config"
	"github.com/bitfsorg/selfenc-go/discovery"
	"github.com/bitfsorg/selfenc-go/logging"
	"github.com/bitfsorg/selfenc-go/metrics"
	"github.com/bitfsorg/selfenc-go/selfenc"
	"github.com/bitfsorg/selfenc-go/storage"
)

// env is what every command builds from the configuration file.
type env struct {
	cfg      config.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    storage.Store
	closers  []io.Closer
}

// openEnv loads the configuration and opens logging, metrics and the
// configured backend wrapped in the metrics decorator.
func openEnv(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.New(e.registry)

	backend, closer, err := storage.Open(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	e.closers = append(e.closers, closer)
	e.store = storage.NewInstrumented(backend, cfg.Backend, e.metrics)

	logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"datadir": cfg.DataDir,
	}).Debug("opened chunk store")
	return e, nil
}

// chunkStore returns the local store, or a resolver that falls back to the
// configured and discovered remote chunk servers.
func (e *env) chunkStore() (storage.ChunkStore, error) {
	endpoints, err := discovery.Endpoints(e.cfg, discovery.ResolverFor(e.cfg))
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return e.store, nil
	}
	e.logger.WithField("endpoints", endpoints).Debug("using remote chunk servers")
	return storage.NewContentResolver(e.store, endpoints...), nil
}

// engineOptions returns the encryptor options for the configuration.
func (e *env) engineOptions() ([]selfenc.Option, error) {
	opts, err := selfenc.OptionsFromConfig(e.cfg)
	if err != nil {
		return nil, err
	}
	return append(opts, selfenc.WithLogger(e.logger), selfenc.WithMetrics(e.metrics)), nil
}

// Close releases the backend and the log file, most recent first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}
