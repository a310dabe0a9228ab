package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"pkt.systems/pslog"

	"estatecore/internal/blob"
	"estatecore/internal/core"
	redislock "estatecore/internal/infra/lock/redis"
	prommetrics "estatecore/internal/infra/metrics/prometheus"
	oteltracing "estatecore/internal/infra/tracing/otel"
	"estatecore/plugins/agent"
	"estatecore/plugins/property"
	"estatecore/plugins/shop"
)

// modules lists every domain module the binary installs.
func modules() []core.Module {
	return []core.Module{agent.New(), property.New(), shop.New()}
}

// runtime is the service graph of one CLI invocation.
type runtime struct {
	cfg      cliConfig
	logger   pslog.Logger
	store    core.PersistentStore
	svc      *core.Service
	archive  *core.BlobArchive
	registry *prometheus.Registry
	closers  []func() error
}

func openRuntime(ctx context.Context, cfg cliConfig, logger pslog.Logger) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	store, err := core.OpenStore(cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return rt, fmt.Errorf("open store: %w", err)
	}
	rt.store = store
	if closer, ok := store.(io.Closer); ok {
		rt.closers = append(rt.closers, closer.Close)
	}

	locker, err := rt.openLocker(ctx)
	if err != nil {
		return rt, err
	}

	rt.registry = prometheus.NewRegistry()
	recorder, err := prommetrics.NewRecorder(rt.registry, "")
	if err != nil {
		return rt, fmt.Errorf("metrics: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithLocker(locker),
		core.WithMetricsRecorder(recorder),
		core.WithTracer(oteltracing.New(nil)),
	}
	var audit core.MultiAudit
	if cfg.Archive {
		blobs, err := blob.OpenConfig(ctx, cfg.Blob)
		if err != nil {
			return rt, fmt.Errorf("open archive: %w", err)
		}
		rt.archive = core.NewBlobArchive(blobs, logger)
		audit = append(audit, rt.archive)
	}
	if cfg.AuditLog != "" {
		f, err := os.OpenFile(cfg.AuditLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return rt, fmt.Errorf("open audit log: %w", err)
		}
		journal := core.NewAuditJournal(f)
		rt.closers = append(rt.closers, func() error {
			return errors.Join(journal.Err(), f.Close())
		})
		audit = append(audit, journal)
	}
	if len(audit) > 0 {
		opts = append(opts, core.WithAuditRecorder(audit))
	}

	rt.svc = core.NewService(store, opts...)
	for _, m := range modules() {
		if _, err := rt.svc.InstallModule(m); err != nil {
			return rt, err
		}
	}
	return rt, nil
}

func (rt *runtime) openLocker(ctx context.Context) (core.Locker, error) {
	if rt.cfg.RedisURL == "" {
		return core.NewLocalLocker(rt.cfg.LockMode), nil
	}
	client, err := redislock.Connect(ctx, rt.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, client.Close)
	opts := []redislock.Option{redislock.WithTTL(rt.cfg.LockTTL), redislock.WithLogger(rt.logger)}
	if rt.cfg.LockMode != core.LockFail {
		opts = append(opts, redislock.WithWait(0))
	}
	return redislock.New(client, opts...), nil
}

// Close writes the metrics textfile when requested and releases backends.
func (rt *runtime) Close() error {
	var errs []error
	if rt.cfg.MetricsFile != "" && rt.registry != nil {
		if err := prommetrics.WriteTextfile(rt.cfg.MetricsFile, rt.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
