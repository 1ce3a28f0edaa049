package main

import (
	"io"
	"net/http"
	"time"

	"github.com/RuiFG/teleport/common/pool"
	"github.com/RuiFG/teleport/config"
	"github.com/RuiFG/teleport/log"
	"github.com/RuiFG/teleport/store"
	"github.com/RuiFG/teleport/store/home"
	"github.com/RuiFG/teleport/store/permission"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
)

type host struct {
	application config.Application
	logger      log.Logger
	scope       tally.Scope
	closers     []io.Closer
	workers     *pool.Pool
	registry    *store.Registry
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func setupLogger(application config.Application) log.Logger {
	level := log.InfoLevel
	if application.Debug {
		level = log.DebugLevel
	}
	encoder := log.JsonOutputEncoder
	if application.LogFormat == "console" {
		encoder = log.ConsoleOutputEncoder
	}
	log.Setup(log.DefaultOptions().WithOutputEncoder(encoder).WithLevel(level).WithNamed("teleport"))
	return log.Global()
}

// openHost opens the database and registers every unit, the units are not loaded yet.
func openHost() (*host, error) {
	application, err := config.Load(viper.New(), configFile)
	if err != nil {
		return nil, err
	}
	h := &host{application: application, logger: setupLogger(application), scope: tally.NoopScope}
	if application.MetricsAddr != "" {
		h.serveMetrics(application.MetricsAddr)
	}

	if h.workers, err = pool.New(application.PoolSize, h.logger.Named("pool")); err != nil {
		h.close()
		return nil, err
	}
	nutsOptions := store.DefaultNutsDBOptions
	nutsOptions.Dir, nutsOptions.Bucket = application.DataDir, application.Bucket
	if application.SegmentSize > 0 {
		nutsOptions.SegmentSize = application.SegmentSize
	}
	kv, err := store.OpenNutsDB(h.logger.Named("nutsdb"), nutsOptions)
	if err != nil {
		h.close()
		return nil, errors.WithMessage(err, "failed to open storage")
	}
	h.registry = store.NewRegistry(kv,
		store.WithLogger(h.logger.Named("registry")),
		store.WithScope(h.scope),
		store.WithExecutor(h.workers),
		store.WithCompactEvery(application.CompactEvery))

	homeOptions := home.DefaultOptions
	homeOptions.NameLength = application.Home.NameLength
	if err = store.Register(h.registry, home.New(homeOptions)); err == nil {
		err = store.Register(h.registry, permission.New())
	}
	if err != nil {
		h.close()
		return nil, err
	}
	return h, nil
}

func (h *host) serveMetrics(addr string) {
	reporter := promreporter.NewReporter(promreporter.Options{})
	scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "teleport",
		CachedReporter: reporter,
		Separator:      promreporter.DefaultSeparator,
	}, time.Second)
	mux := http.NewServeMux()
	mux.Handle("/metrics", reporter.HTTPHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Warnw("metrics server stopped.", "addr", addr, "err", err)
		}
	}()
	h.logger.Infow("serving metrics.", "addr", addr)
	h.scope = scope
	h.closers = append(h.closers, scopeCloser, closerFunc(server.Close))
}

// close tears down in reverse order of openHost, the registry stops its
// scheduler before the database is closed.
func (h *host) close() {
	if h.registry != nil {
		if err := h.registry.Close(); err != nil {
			h.logger.Warnw("failed to close registry.", "err", err)
		}
	}
	if h.workers != nil {
		h.workers.Release()
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		_ = h.closers[i].Close()
	}
	_ = h.logger.Sync()
}
