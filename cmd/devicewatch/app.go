package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/livecache/internal/config"
	"github.com/unkn0wn-root/livecache/iot"
	lczap "github.com/unkn0wn-root/livecache/log/zap"
	"github.com/unkn0wn-root/livecache/promhooks"
	"github.com/unkn0wn-root/livecache/source"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	cfg     config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	client  *iot.HTTPClient
	svc     *iot.Service
	pings   *source.Store[iot.PingHistory] // nil when snapshots are off
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, &usageError{err}
	}
	a := &app{cfg: cfg, log: logger, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.client, err = iot.NewHTTPClient(iot.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		HedgeAfter: cfg.API.HedgeAfter,
		HedgeUpTo:  cfg.API.HedgeUpTo,
	})
	if err != nil {
		return nil, &usageError{err}
	}
	registerHedgeStats(a.reg, cfg.Metrics.Namespace, a.client)

	cacheLog := lczap.New(logger)
	a.svc, err = iot.NewService(a.client, iot.ServiceOptions{
		Capacity: cfg.Cache.Capacity,
		Logger:   cacheLog,
		Hooks:    promhooks.New(a.reg, cfg.Metrics.Namespace),
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.svc.Close)

	store, closeStore, err := openSnapshot(ctx, cfg.Snapshot, cacheLog)
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if store != nil {
		a.pings = store
		a.closers = append(a.closers, closeStore)
	}
	return a, nil
}

// close runs closers in reverse order and flushes the logger.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// serveMetrics exposes the registry on addr until ctx ends.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		a.log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func registerHedgeStats(reg prometheus.Registerer, namespace string, c *iot.HTTPClient) {
	stats := c.HedgeStats()
	if stats == nil {
		return
	}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requested_round_trips_total",
			Help:      "Read requests issued by the service.",
		}, func() float64 { return float64(stats.RequestedRoundTrips()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "actual_round_trips_total",
			Help:      "Read requests sent to the backend, hedges included.",
		}, func() float64 { return float64(stats.ActualRoundTrips()) }),
	)
}
