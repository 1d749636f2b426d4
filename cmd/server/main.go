package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/alerts"
	"github.com/aristath/trader-ops/internal/config"
	"github.com/aristath/trader-ops/internal/database"
	"github.com/aristath/trader-ops/internal/history"
	"github.com/aristath/trader-ops/internal/invoker"
	"github.com/aristath/trader-ops/internal/jobs"
	"github.com/aristath/trader-ops/internal/market"
	"github.com/aristath/trader-ops/internal/quality"
	"github.com/aristath/trader-ops/internal/scheduler"
	"github.com/aristath/trader-ops/internal/server"
	"github.com/aristath/trader-ops/internal/triggers"
	"github.com/aristath/trader-ops/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger not configured yet
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting trader-ops")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Shared infrastructure
	inv := invoker.New(log)
	recorder := history.NewRecorder(db.Conn(), cfg.StoreTimeout, log)
	qualityRepo := quality.NewRepository(db.Conn(), cfg.StoreTimeout, log)
	baselines := triggers.NewBaselineRepository(db.Conn(), cfg.StoreTimeout, log)
	digest := quality.NewDigestQueue()

	alertManager := alerts.NewManager(alerts.ManagerConfig{
		DB:         db.Conn(),
		Invoker:    inv,
		WebhookURL: cfg.AlertWebhookURL,
		Timeout:    cfg.StoreTimeout,
		Log:        log,
	})

	gate, err := market.NewGate(market.GateConfig{
		Timezone:  cfg.MarketTimezone,
		OpenHour:  cfg.MarketOpenHour,
		CloseHour: cfg.MarketCloseHour,
		Log:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure market gate")
	}

	aggregator := quality.NewAggregator(quality.AggregatorConfig{
		Store:  qualityRepo,
		Digest: digest,
		Alerts: alertManager,
		Log:    log,
	})

	registry := scheduler.NewRegistry()
	if err := registerJobs(registry, cfg, log, registerDeps{
		invoker:    inv,
		gate:       gate,
		baselines:  baselines,
		recorder:   recorder,
		digest:     digest,
		aggregator: aggregator,
		alerts:     alertManager,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Registry: registry,
		Recorder: recorder,
		Alerter:  alertManager,
		Log:      log,
	})
	dispatcher.Start()
	defer dispatcher.Stop()

	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		DevMode:    cfg.DevMode,
		Registry:   registry,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Quality:    qualityRepo,
		Digest:     digest,
		Baselines:  baselines,
		Alerts:     alertManager,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}

type registerDeps struct {
	invoker    *invoker.Client
	gate       *market.Gate
	baselines  *triggers.BaselineRepository
	recorder   *history.Recorder
	digest     *quality.DigestQueue
	aggregator *quality.Aggregator
	alerts     *alerts.Manager
}

// registerJobs builds the whole job fleet: the config-driven remote jobs,
// the retraining trigger, and the three quality tiers. Duplicate ids are
// fatal here, before the dispatcher starts.
func registerJobs(registry *scheduler.Registry, cfg *config.Config, log zerolog.Logger, deps registerDeps) error {
	// Remote-action fleet, declared as data
	for _, spec := range jobs.FleetSpecs(cfg) {
		job := jobs.NewRemoteActionJob(jobs.RemoteActionConfig{
			Spec:      spec,
			Invoker:   deps.invoker,
			Gate:      deps.gate,
			Baselines: deps.baselines,
			Log:       log,
		})
		if err := registry.Register(job, spec.Options()); err != nil {
			return err
		}
	}

	// Retraining trigger: fires once enough data mutations accumulate
	if err := deps.baselines.Ensure(jobs.RetrainJobID, cfg.RetrainThreshold); err != nil {
		return err
	}
	retrainTrigger := triggers.NewThresholdTrigger(triggers.ThresholdTriggerConfig{
		JobID:  jobs.RetrainJobID,
		Repo:   deps.baselines,
		Action: jobs.NewRetrainAction(deps.invoker, cfg.MLServiceURL+"/train", 10*time.Minute),
		Log:    log,
	})
	retrain := jobs.NewRetrainJob(jobs.RetrainConfig{
		Schedule: scheduler.Cron("15 */2 * * *"),
		Trigger:  retrainTrigger,
		Alerts:   deps.alerts,
		Log:      log,
	})
	if err := registry.Register(retrain, scheduler.Options{Timeout: 15 * time.Minute, StreakThreshold: 4}); err != nil {
		return err
	}

	// Quality tiers: hourly/fast, daily/deep, weekly/audit
	auditURL := cfg.AuditServiceURL

	hourly := jobs.NewTierJob(jobs.TierJobConfig{
		ID:         "quality_hourly",
		Name:       "Hourly Quality Checks",
		Schedule:   scheduler.Cron("5 * * * *"),
		Tier:       quality.TierHourly,
		Aggregator: deps.aggregator,
		Checks: []quality.Check{
			jobs.StaleExecutionsCheck(deps.recorder, registry, 6*time.Hour, nil),
			jobs.RemoteAuditCheck("price_freshness", deps.invoker, auditURL+"/audit/price-freshness", time.Minute),
		},
		Log: log,
	})
	if err := registry.Register(hourly, scheduler.Options{Timeout: 5 * time.Minute}); err != nil {
		return err
	}

	daily := jobs.NewTierJob(jobs.TierJobConfig{
		ID:         "quality_daily",
		Name:       "Daily Quality Checks",
		Schedule:   scheduler.Cron("30 2 * * *"),
		Tier:       quality.TierDaily,
		Aggregator: deps.aggregator,
		Checks: []quality.Check{
			jobs.StaleExecutionsCheck(deps.recorder, registry, 24*time.Hour, nil),
			jobs.DigestBacklogCheck(deps.digest, 500),
			jobs.RemoteAuditCheck("completeness", deps.invoker, auditURL+"/audit/completeness", 5*time.Minute),
			jobs.RemoteAuditCheck("referential_integrity", deps.invoker, auditURL+"/audit/referential-integrity", 5*time.Minute),
		},
		Log: log,
	})
	if err := registry.Register(daily, scheduler.Options{Timeout: 20 * time.Minute, StreakThreshold: 4}); err != nil {
		return err
	}

	weekly := jobs.NewTierJob(jobs.TierJobConfig{
		ID:         "quality_weekly",
		Name:       "Weekly Quality Audit",
		Schedule:   scheduler.Cron("0 4 * * 0"),
		Tier:       quality.TierWeekly,
		Aggregator: deps.aggregator,
		Checks: []quality.Check{
			jobs.RemoteAuditCheck("full_consistency", deps.invoker, auditURL+"/audit/consistency", 15*time.Minute),
			jobs.RemoteAuditCheck("anomaly_scan", deps.invoker, auditURL+"/audit/anomalies", 15*time.Minute),
			jobs.RemoteAuditCheck("duplicate_scan", deps.invoker, auditURL+"/audit/duplicates", 10*time.Minute),
		},
		Log: log,
	})
	if err := registry.Register(weekly, scheduler.Options{Timeout: 45 * time.Minute, StreakThreshold: 5}); err != nil {
		return err
	}

	log.Info().Int("jobs", len(registry.All())).Msg("Job fleet registered")
	return nil
}
