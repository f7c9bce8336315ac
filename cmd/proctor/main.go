package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/app/monitor"
	"github.com/ExamTrust/ProctorGate/pkg/cache"
	"github.com/ExamTrust/ProctorGate/pkg/common"
	"github.com/ExamTrust/ProctorGate/pkg/config"
	handlers "github.com/ExamTrust/ProctorGate/pkg/handlers/http"
	"github.com/ExamTrust/ProctorGate/pkg/infra/abuse"
	"github.com/ExamTrust/ProctorGate/pkg/infra/admission"
	"github.com/ExamTrust/ProctorGate/pkg/infra/database"
	infraLogger "github.com/ExamTrust/ProctorGate/pkg/infra/logger"
	"github.com/ExamTrust/ProctorGate/pkg/infra/notify"
	"github.com/ExamTrust/ProctorGate/pkg/infra/portpool"
	infraPrometheus "github.com/ExamTrust/ProctorGate/pkg/infra/prometheus"
	"github.com/ExamTrust/ProctorGate/pkg/infra/repository"
	"github.com/ExamTrust/ProctorGate/pkg/risk"
	"github.com/ExamTrust/ProctorGate/pkg/server"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger("proctor")

	if err := config.Load("./config"); err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	infraPrometheus.Initialize()

	db, err := database.NewDB(logger, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	cacheInstance, err := cache.NewCache(common.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
	})
	if err != nil {
		logger.Fatalf("failed to initialize cache: %v", err)
	}
	initializeMemoryCache(cacheInstance)

	writer := notify.NewDurableWriter(logger)
	defer writer.Close()
	publisher := notify.NewRedisEventPublisher(cacheInstance)

	// repository
	eventRepository := repository.NewSecurityEventRepository(db.DB)
	summaryRepository := repository.NewSessionSummaryRepository(db.DB)
	banRepository := repository.NewBanRecordRepository(db.DB)
	liveSessionRepository := repository.NewSessionRepository(cacheInstance)

	// abuse control
	banRegistry := abuse.NewBanRegistry(cacheInstance.Client(), banRepository, writer, publisher, logger, abuse.RegistryConfig{
		ShortBan:        cfg.Abuse.ShortBan,
		MediumBan:       cfg.Abuse.MediumBan,
		LongBan:         cfg.Abuse.LongBan,
		ViolationMemory: cfg.Abuse.ViolationMemory,
	}, &abuse.BanRegistryOpts{
		LocalBans: cacheInstance.GetTTLMap(cache.BanTTLName),
	})
	limiter := abuse.NewLimiter(cacheInstance.Client(), banRegistry, logger, abuse.LimiterConfig{
		ConnectionLimit:  cfg.Abuse.ConnectionLimit,
		ConnectionWindow: cfg.Abuse.ConnectionWindow,
		EventLimit:       cfg.Abuse.EventLimit,
		EventWindow:      cfg.Abuse.EventWindow,
		Whitelist:        cfg.Abuse.Whitelist,
	}, nil)

	pool, err := portpool.New(cfg.Monitor.PortRangeFrom, cfg.Monitor.PortRangeTo)
	if err != nil {
		logger.Fatalf("failed to initialize port pool: %v", err)
	}

	validator := admission.NewValidator()
	endpointFactory := server.NewSessionEndpointFactory(logger, cfg.Monitor.EndpointHost)

	riskConfig := risk.Config{
		WindowSize:           cfg.Risk.WindowSize,
		AlertThreshold:       cfg.Risk.AlertThreshold,
		SuspendThreshold:     cfg.Risk.SuspendThreshold,
		DecayPerTick:         cfg.Risk.DecayPerTick,
		DecayFloor:           cfg.Risk.DecayFloor,
		KeybindIncrement:     cfg.Risk.KeybindIncrement,
		KeybindDecay:         cfg.Risk.KeybindDecay,
		KeybindMinIncrement:  cfg.Risk.KeybindMinIncrement,
		LinearMinRun:         cfg.Risk.LinearMinRun,
		LinearPerSample:      cfg.Risk.LinearPerSample,
		LinearCap:            cfg.Risk.LinearCap,
		MinVisibilityLossMs:  cfg.Risk.MinVisibilityLossMs,
		VisibilityPerSecond:  cfg.Risk.VisibilityPerSecond,
		VisibilityCap:        cfg.Risk.VisibilityCap,
		AutomationIncrement:  cfg.Risk.AutomationIncrement,
		TimingVarianceMax:    cfg.Risk.TimingVarianceMax,
		DirectionVarianceMax: cfg.Risk.DirectionVarianceMax,
	}

	registry := monitor.NewRegistry(
		pool,
		endpointFactory,
		limiter,
		validator,
		func() monitor.Accumulator { return risk.NewAccumulator(riskConfig) },
		publisher,
		writer,
		eventRepository,
		summaryRepository,
		liveSessionRepository,
		logger,
		monitor.RegistryConfig{
			AdmissionThreshold: cfg.Admission.Threshold,
			IdleTimeout:        cfg.Monitor.IdleTimeout,
			SweepInterval:      cfg.Monitor.SweepInterval,
		},
		cfg.Risk.AlertThreshold,
		cfg.Risk.SuspendThreshold,
	)
	endpointFactory.Bind(registry)

	handlerTransport := handlers.HandlerTransport{
		StartMonitoringHandler:   handlers.NewStartMonitoringHandler(logger, registry),
		EndMonitoringHandler:     handlers.NewEndMonitoringHandler(logger, registry),
		ListSessionsHandler:      handlers.NewListSessionsHandler(logger, registry),
		ListSessionEventsHandler: handlers.NewListSessionEventsHandler(logger, eventRepository),
		ListBansHandler:          handlers.NewListBansHandler(logger, banRegistry),
		UnbanHandler:             handlers.NewUnbanHandler(logger, banRegistry),
	}

	srv := server.NewAdminServer(server.AdminServerDI{
		HandlerTransport: handlerTransport,
		Config:           cfg,
		Logger:           logger,
	})

	maintenanceCtx, cancelMaintenance := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(maintenanceCtx)
	group.Go(func() error {
		return registry.RunMaintenance(groupCtx)
	})

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")

	cancelMaintenance()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("maintenance loop stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	registry.Shutdown(shutdownCtx)

	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	fmt.Println("server gracefully stopped")
}

func initializeMemoryCache(cacheInstance *cache.Cache) {
	_ = cacheInstance.CreateTTLMap(cache.SessionTTLName, common.SessionCacheTTL)
	_ = cacheInstance.CreateTTLMap(cache.BanTTLName, common.BanCacheTTL)
}
