package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/reportsync/internal/api"
	"github.com/ignite/reportsync/internal/config"
	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/mailstats"
	"github.com/ignite/reportsync/internal/pkg/distlock"
	"github.com/ignite/reportsync/internal/pkg/logger"
	"github.com/ignite/reportsync/internal/repository/postgres"
	"github.com/ignite/reportsync/internal/syncsvc"
	"github.com/ignite/reportsync/internal/voicedrop"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		logger.Error("database url is required (config database.url or DATABASE_URL)")
		os.Exit(1)
	}

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, using postgres advisory lock", "error", err)
			redisClient = nil
		}
	}
	lock := distlock.NewLock(redisClient, db, "reportsync:sync", 30*time.Minute)

	clientRepo := postgres.NewClientRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	recordRepo := postgres.NewRecordRepo(db)
	importedRepo := postgres.NewImportedFileRepo(db)
	tenantRepo := postgres.NewTenantRepo(db)
	emailRepo := postgres.NewEmailRepo(db)
	monthRepo := postgres.NewFetchedMonthRepo(db)
	settingsRepo := postgres.NewSettingsRepo(db)
	logRepo := postgres.NewSyncLogRepo(db)

	dialer := voicedrop.NewSFTPDialer(cfg.Voicedrop.ConnectTimeout(), cfg.Voicedrop.ConnectRetries)
	vdSyncer := voicedrop.NewSyncer(dialer, settingsRepo, importedRepo,
		campaignRepo, recordRepo, clientRepo,
		cfg.Voicedrop.StagingDir, cfg.Voicedrop.FileExtension, cfg.Voicedrop.InsertBatchSize)

	newClient := func(tenant domain.Tenant) mailstats.Reporter {
		return mailstats.NewClient(tenant, cfg.Mailstats.Timeout(), cfg.Mailstats.ReportTimeout())
	}
	msSyncer := mailstats.NewSyncer(newClient, emailRepo, tenantRepo, monthRepo,
		cfg.Mailstats.PageLimit, cfg.Mailstats.PageRetries, cfg.Mailstats.PageConcurrency,
		cfg.Mailstats.MonthPause())

	service := syncsvc.NewService(vdSyncer, msSyncer, tenantRepo, logRepo, lock, cfg.Sync.TenantBatchSize)

	handler := api.NewHandler(service, campaignRepo, cfg.Sync.BackfillMonths, version)
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
