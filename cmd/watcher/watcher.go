package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelzeko/river-alert/internal/config"
	"github.com/abelzeko/river-alert/internal/detector"
	"github.com/abelzeko/river-alert/internal/integration"
	"github.com/abelzeko/river-alert/internal/logging"
	"github.com/abelzeko/river-alert/internal/metrics"
	"github.com/abelzeko/river-alert/internal/normalize"
	"github.com/abelzeko/river-alert/internal/notifier"
	"github.com/abelzeko/river-alert/internal/repository"
	"github.com/abelzeko/river-alert/internal/usecases"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Process exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

const pushJob = "river_alert"

func main() {
	os.Exit(run())
}

func run() int {
	schedule := flag.String("schedule", "", "cron spec to run as a daemon (overrides SCHEDULE)")
	sourcesPath := flag.String("sources", "", "station source config file (overrides STATION_SOURCE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load()
	logging.Setup(cfg.LogLevel)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitConfig
	}
	log.Info().Msg("Starting river alert watcher...")

	if *sourcesPath != "" {
		cfg.SourceConfigPath = *sourcesPath
	}
	if *schedule != "" {
		cfg.Schedule = *schedule
	}

	sources, err := integration.LoadSourceConfig(cfg.SourceConfigPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load station sources")
		return exitConfig
	}

	w, err := newWatcher(cfg, sources, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize watcher")
		return exitConfig
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule == "" {
		return w.runOnce(ctx)
	}
	return w.daemon(ctx)
}

// watcher owns everything a run needs
type watcher struct {
	cfg    config.Config
	alerts *usecases.AlertUseCase
	store  repository.StateStore
}

// newWatcher wires the run from configuration. newBrowser may be nil.
func newWatcher(cfg config.Config, sources integration.SourceConfig, newBrowser integration.BrowserFactory) (*watcher, error) {
	if cfg.SourceTimezone != "" {
		sources.Timezone = cfg.SourceTimezone
	}
	loc, err := normalize.LoadLocation(sources.Timezone)
	if err != nil {
		return nil, err
	}

	chain, err := integration.BuildChain(sources, newBrowser)
	if err != nil {
		return nil, err
	}

	var store repository.StateStore
	switch cfg.StateBackend {
	case config.BackendSQLite:
		store, err = repository.NewSQLiteStateStore(cfg.StateFile, sources.StationID)
	default:
		store, err = repository.NewFileStateStore(cfg.StateFile)
	}
	if err != nil {
		return nil, err
	}

	n, err := newNotifier(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	alerts := usecases.NewAlertUseCase(
		chain,
		normalize.NewNormalizer(sources.StationID, sources.StationName, loc),
		store,
		detector.New(cfg.Policy),
		n,
		cfg.NotifyRetry,
	)
	return &watcher{cfg: cfg, alerts: alerts, store: store}, nil
}

// newNotifier returns nil when no credentials are configured
func newNotifier(cfg config.Config) (notifier.Notifier, error) {
	if !cfg.NotifyConfigured() {
		log.Warn().Msg("NOTIFY_TOKEN or NOTIFY_RECIPIENT is not set, alerts will only be logged")
		return nil, nil
	}
	if cfg.NotifyChannel == config.ChannelTelegram {
		return notifier.NewTelegramNotifier(cfg.NotifyEndpoint, cfg.NotifyToken, cfg.NotifyRecipient)
	}
	return notifier.NewPushNotifier(cfg.NotifyEndpoint, cfg.NotifyToken, cfg.NotifyRecipient)
}

func (w *watcher) Close() {
	if err := w.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close state store")
	}
}

// runOnce performs one run and returns the process exit code
func (w *watcher) runOnce(ctx context.Context) int {
	res, err := w.alerts.Run(ctx, time.Now())
	w.pushMetrics()
	if err != nil {
		log.Error().Err(err).Str("outcome", res.Outcome).Msg("Run failed")
		return exitFailed
	}
	log.Info().Str("outcome", res.Outcome).Bool("notified", res.Notified).Bool("saved", res.Saved).Msg("Run finished")
	return exitOK
}

func (w *watcher) pushMetrics() {
	if w.cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(w.cfg.PushgatewayURL, pushJob); err != nil {
		log.Warn().Err(err).Msg("Failed to push metrics")
	}
}

// daemon runs immediately, then on the cron schedule until ctx is done
func (w *watcher) daemon(ctx context.Context) int {
	if w.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: w.cfg.MetricsAddr, Handler: metricsMux()}
		go func() {
			log.Info().Str("addr", w.cfg.MetricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&log.Logger))))
	_, err := c.AddFunc(w.cfg.Schedule, func() {
		w.runOnce(ctx)
	})
	if err != nil {
		log.Error().Err(err).Str("schedule", w.cfg.Schedule).Msg("Failed to set up cron job")
		return exitConfig
	}

	// Run immediately on startup
	w.runOnce(ctx)

	log.Info().Str("schedule", w.cfg.Schedule).Msg("Watcher has been scheduled")
	c.Start()
	<-ctx.Done()

	log.Info().Msg("Shutting down, waiting for the running check to finish")
	<-c.Stop().Done()
	return exitOK
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
