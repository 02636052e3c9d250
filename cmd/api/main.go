package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/catalog"
	"github.com/hamed0406/serverwatch/internal/config"
	"github.com/hamed0406/serverwatch/internal/display"
	"github.com/hamed0406/serverwatch/internal/events"
	"github.com/hamed0406/serverwatch/internal/httpapi"
	apimw "github.com/hamed0406/serverwatch/internal/httpapi/middleware"
	"github.com/hamed0406/serverwatch/internal/logging"
	"github.com/hamed0406/serverwatch/internal/monitor"
	"github.com/hamed0406/serverwatch/internal/notify"
	"github.com/hamed0406/serverwatch/internal/probe"
	"github.com/hamed0406/serverwatch/internal/registry"
	"github.com/hamed0406/serverwatch/internal/repo"
	"github.com/hamed0406/serverwatch/internal/repo/file"
	"github.com/hamed0406/serverwatch/internal/repo/memory"
	"github.com/hamed0406/serverwatch/internal/repo/postgres"
	"github.com/hamed0406/serverwatch/internal/repo/sqlite"
	"github.com/hamed0406/serverwatch/internal/resolve"
	"github.com/hamed0406/serverwatch/internal/scheduler"
	"github.com/hamed0406/serverwatch/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("SW_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	labelMode, err := registry.ParseLabelMode(cfg.Registry.LabelMode)
	if err != nil {
		return err
	}

	queue := events.NewQueue(logger)
	cat := catalog.New()
	prober := newProber(cfg)
	mon := monitor.New(logger, prober, queue, monitor.NewMetrics(promReg), monitor.Config{
		OfflineThreshold: cfg.Monitor.OfflineThreshold,
		ProbeTimeout:     probeDeadline(prober, cfg),
		Concurrency:      cfg.Monitor.Concurrency,
	})
	board := display.NewBoard(logger, display.DefaultMaxLabelLen)
	notifier := notify.Multi{notify.Log{Logger: logger}, notify.NewWebhook(cfg.Notify.FallbackWebhook)}
	reg := registry.New(logger, cat, mon, board, notifier, registry.Config{
		DefaultMute: cfg.Registry.DefaultMute,
		Mode:        labelMode,
	})
	svc := service.New(logger, cat, mon, reg, resolve.New(cfg.Resolve.Ceiling), store)

	if err := svc.Restore(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := queue.Run(ctx, reg.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("event_queue_stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		scheduler.NewRunner(logger, "poll", cfg.Monitor.PollInterval, mon.PollCycle).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.NewRunner(logger, "reconcile", cfg.Registry.ReconcileInterval, func(ctx context.Context) {
			reg.Reconcile(ctx)
		}).Run(ctx)
	}()

	api := httpapi.NewServer(logger, svc, board, promReg, apimw.NewHTTPMetrics(promReg))
	keys := apimw.Keys{Public: cfg.API.PublicKeys, Admin: cfg.API.AdminKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.API.PublicRPM, cfg.API.PublicBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("api_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	queue.Close()
	wg.Wait()
	return nil
}

func newProber(cfg config.Config) probe.Prober {
	var p probe.Prober
	switch cfg.Probe.Kind {
	case "http":
		p = probe.NewHTTPProber(cfg.Monitor.ProbeTimeout)
	case "auto":
		p = probe.Fallback{probe.NewHTTPProber(cfg.Monitor.ProbeTimeout), probe.NewTCPProber(cfg.Monitor.ProbeTimeout)}
	default:
		p = probe.NewTCPProber(cfg.Monitor.ProbeTimeout)
	}
	if cfg.Probe.RetryAttempts > 1 {
		p = &probe.RetryProber{
			Inner:          p,
			Attempts:       cfg.Probe.RetryAttempts,
			Backoff:        cfg.Probe.RetryBackoff,
			AttemptTimeout: cfg.Monitor.ProbeTimeout,
		}
	}
	return p
}

// probeDeadline is the per-target deadline the monitor enforces: one
// probe_timeout per attempt plus the backoffs between them.
func probeDeadline(p probe.Prober, cfg config.Config) time.Duration {
	if rp, ok := p.(*probe.RetryProber); ok {
		return rp.Budget()
	}
	return cfg.Monitor.ProbeTimeout
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("storage_memory", zap.String("hint", "state is lost on restart"))
		return memory.New(), nil
	case "sqlite":
		path := cfg.Storage.DSN
		if path == "" {
			if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
				return nil, err
			}
			path = filepath.Join(cfg.Storage.Dir, "serverwatch.db")
		}
		return sqlite.New(ctx, path, logger)
	case "postgres":
		return postgres.New(ctx, cfg.Storage.DSN, logger)
	default:
		return file.New(cfg.Storage.Dir, logger)
	}
}
