package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/config"
	"github.com/mamadbah2/rabbitry/internal/metrics"
	"github.com/mamadbah2/rabbitry/internal/notify"
	"github.com/mamadbah2/rabbitry/internal/repository"
	"github.com/mamadbah2/rabbitry/internal/repository/memory"
	"github.com/mamadbah2/rabbitry/internal/repository/mongodb"
	"github.com/mamadbah2/rabbitry/internal/repository/sheets"
	"github.com/mamadbah2/rabbitry/internal/scheduler"
	"github.com/mamadbah2/rabbitry/internal/server/handlers"
	"github.com/mamadbah2/rabbitry/internal/server/router"
	"github.com/mamadbah2/rabbitry/internal/service/alerts"
	"github.com/mamadbah2/rabbitry/internal/service/breeding"
	whatsappsvc "github.com/mamadbah2/rabbitry/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/rabbitry/pkg/clients/whatsapp"
	"github.com/mamadbah2/rabbitry/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	projector, err := calendar.NewProjector(cfg.Breeding.DefaultTimezone)
	if err != nil {
		baseLogger.Fatal("failed to load default timezone", zap.Error(err))
	}

	var store repository.Store
	if cfg.MongoDB.URI != "" {
		mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoRepo
	} else {
		baseLogger.Warn("MONGODB_URI not set, records are kept in memory only")
		store = memory.New()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	breedingOpts := []breeding.Option{breeding.WithMetrics(m)}
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		ledger := sheets.NewBreedingLedger(sheetsRepo)
		if err := ledger.Check(context.Background()); err != nil {
			baseLogger.Fatal("breeding ledger unreachable", zap.Error(err))
		}
		breedingOpts = append(breedingOpts, breeding.WithLedger(ledger))
		baseLogger.Info("google sheets breeding ledger enabled")
	}
	breedingSvc := breeding.NewService(store, projector, baseLogger.Named("svc.breeding"), breedingOpts...)

	var quota *notify.Quota
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			baseLogger.Fatal("failed to reach redis", zap.Error(err))
		}
		quota = notify.NewQuota(rdb, cfg.Notify.DailyCap, baseLogger.Named("notify.quota"))
	} else {
		baseLogger.Warn("REDIS_ADDR not set, daily notification cap disabled")
	}

	whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
	notifier := notify.NewWhatsAppNotifier(whatsClient, quota, cfg.WhatsApp.DefaultRecipient, baseLogger.Named("notify"))
	evaluator := alerts.NewEvaluator(store, projector, notifier, baseLogger.Named("svc.alerts"),
		alerts.WithLease(cfg.Breeding.DispatchLease),
		alerts.WithMetrics(m))

	messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, cfg.Breeding.DefaultFarmID, evaluator, store, notifier, baseLogger.Named("svc.whatsapp"))

	engine := router.New(router.Handlers{
		Webhook:   handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp")),
		Breeding:  handlers.NewBreedingHandler(breedingSvc, baseLogger.Named("handlers.breeding")),
		Reminders: handlers.NewReminderHandler(evaluator, baseLogger.Named("handlers.reminders")),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Breeding.CronSchedule, evaluator, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer func() { <-sched.Stop().Done() }()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
