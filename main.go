package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/aggregator"
	"fundingflow/cache"
	"fundingflow/config"
	"fundingflow/internal/fetch"
	"fundingflow/livefeed"
	"fundingflow/logger"
	"fundingflow/reader/binance"
	"fundingflow/reader/bybit"
	"fundingflow/reader/kucoin"
	"fundingflow/reader/okx"
	"fundingflow/server"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Fundingflow.Name,
		"version": cfg.Fundingflow.Version,
	}).Info("starting fundingflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "debug" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	client := fetch.NewClient(cfg)

	var sources []aggregator.Source
	if cfg.Source.Binance.Enabled {
		sources = append(sources, binance.Binance_Funding_NewReader(cfg, client))
	}
	if cfg.Source.Bybit.Enabled {
		sources = append(sources, bybit.Bybit_Funding_NewReader(cfg, client))
	}
	if cfg.Source.Okx.Enabled {
		sources = append(sources, okx.Okx_Funding_NewReader(cfg, client))
	}
	if cfg.Source.Kucoin.Enabled {
		sources = append(sources, kucoin.Kucoin_Funding_NewReader(cfg, client))
	}

	orchestrator := aggregator.NewOrchestrator(sources)
	snapshots := cache.NewSnapshotCache(ctx, orchestrator, cfg.Cache.TTL.Std())

	var feed *livefeed.Feed
	if cfg.Source.Binance.Enabled && cfg.Source.Binance.Stream.Enabled {
		feed = livefeed.NewFeed(cfg)
		if err := feed.Start(ctx); err != nil {
			log.WithError(err).Warn("live feed failed to start")
			feed = nil
		}
	}

	if cfg.Refresh.Background {
		go backgroundRefresh(ctx, snapshots, cfg.Refresh.Interval.Std())
	}

	var live server.LiveSource
	if feed != nil {
		live = feed
	}
	srv := server.NewServer(cfg, snapshots, live)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{"addr": cfg.Server.Addr}).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serverErr:
		log.WithError(err).Error("http server failed")
	}

	log.Info("starting graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown error")
	}

	if feed != nil {
		log.Info("stopping live feed")
		feed.Stop()
	}

	log.Info("fundingflow stopped")
}

// backgroundRefresh keeps the snapshot warm so the first request after a quiet
// period does not pay for a full aggregation run. Errors never kill the loop:
// the cache absorbs source failures as empty per-source results.
func backgroundRefresh(ctx context.Context, snapshots *cache.SnapshotCache, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := logger.GetLogger().WithComponent("refresher")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	snapshots.Get(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, cached, _ := snapshots.Get(ctx)
			log.WithFields(logger.Fields{
				"records": len(snapshot.Records),
				"cached":  cached,
			}).Debug("background refresh tick")
		}
	}
}
