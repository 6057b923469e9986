package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/campusgate/gatekeeper/internal/config"
	"github.com/campusgate/gatekeeper/internal/db"
	"github.com/campusgate/gatekeeper/internal/gateway/hub"
	"github.com/campusgate/gatekeeper/internal/gateway/service"
	"github.com/campusgate/gatekeeper/internal/gateway/store/sqlite"
	"github.com/campusgate/gatekeeper/internal/gateway/tcpserver"
	"github.com/campusgate/gatekeeper/internal/httpapi"
	"github.com/campusgate/gatekeeper/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gatekeeper:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env, Logger: logger})
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer database.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, database); err != nil {
			return fmt.Errorf("dev seed: %w", err)
		}
	}

	writer := db.NewWorker(database)
	defer writer.Close()

	// Stores
	deviceStore := sqlite.NewDeviceStore(database, writer)
	cardStore := sqlite.NewCardStore(database)
	templateStore := sqlite.NewTemplateStore(database)
	registrationStore := sqlite.NewRegistrationStore(database, writer)
	accessLogStore := sqlite.NewAccessLogStore(database, writer)
	heartbeatStore := sqlite.NewHeartbeatStore(database, writer)

	// Event fan-out. The hub is the Broadcaster every service publishes
	// through; its snapshot sources are attached once those services exist.
	eventHub := hub.NewHub(logger, cfg.SnapshotLogLimit)

	// Services
	registry := service.NewDeviceRegistry(deviceStore, heartbeatStore, eventHub, logger)
	accessSvc := service.NewAccessService(cardStore, templateStore, deviceStore, accessLogStore, eventHub, logger)
	enrollmentSvc := service.NewEnrollmentService(registrationStore, eventHub, logger)
	statsSvc := service.NewStatsService(deviceStore, cardStore, registrationStore, accessLogStore, registry)
	eventHub.AttachSources(statsSvc, registry)

	pruner := service.NewHeartbeatPruner(heartbeatStore, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// Servers
	tcpSrv := tcpserver.New(tcpserver.Config{Addr: cfg.TCPAddr}, registry, accessSvc, enrollmentSvc, logger)
	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Devices:    deviceStore,
		Registry:   registry,
		Enrollment: enrollmentSvc,
		Stats:      statsSvc,
		Hub:        eventHub,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eventHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return tcpSrv.Start(gctx)
	})

	g.Go(func() error {
		logger.Info("admin api started", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tcpSrv.Shutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		// Connected devices are marked inactive so the persisted state
		// reflects that nothing survives a gateway restart.
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("registry shutdown", zap.Error(err))
		}
		return nil
	})

	logger.Info("gatekeeper running",
		zap.String("tcp_addr", cfg.TCPAddr),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("env", cfg.Env),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("gatekeeper stopped")
	return nil
}
