package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treasury-systemv1/config"
	"treasury-systemv1/internal/admin"
	"treasury-systemv1/internal/auth"
	"treasury-systemv1/internal/controller"
	"treasury-systemv1/internal/feed"
	"treasury-systemv1/internal/heartbeat"
	"treasury-systemv1/internal/indicator"
	"treasury-systemv1/internal/journal"
	"treasury-systemv1/internal/logger"
	"treasury-systemv1/internal/metrics"
	"treasury-systemv1/internal/model"
	"treasury-systemv1/internal/notification"
	redisstore "treasury-systemv1/internal/store/redis"
	"treasury-systemv1/internal/treasury"
	"treasury-systemv1/internal/venue"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("bandd", slog.LevelInfo)
	log.Println("[bandd] starting...")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Price feeds ----
	assetFeed := feed.NewWSFeed("asset/base", cfg.AssetFeedURL, cfg.AssetFeedDecimals)
	reserveFeed := feed.NewWSFeed("reserve/base", cfg.ReserveFeedURL, cfg.ReserveFeedDecimals)
	assetFeed.OnReconnect = func() { prom.FeedReconnects.WithLabelValues("asset/base").Inc() }
	reserveFeed.OnReconnect = func() { prom.FeedReconnects.WithLabelValues("reserve/base").Inc() }
	go assetFeed.Run(ctx)
	go reserveFeed.Run(ctx)

	// ---- Indicator engine ----
	engine, err := indicator.New(assetFeed, reserveFeed, cfg.MovingAverageDuration, cfg.ObservationFrequency)
	if err != nil {
		log.Fatalf("[bandd] indicator engine: %v", err)
	}
	log.Printf("[bandd] window: %d observations (%s / %s)",
		engine.WindowSize(), cfg.MovingAverageDuration, cfg.ObservationFrequency)

	// ---- Observation publisher ----
	publisher, err := redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[bandd] redis: %v", err)
	}
	defer publisher.Close()
	publisher.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }
	publisher.OnDrop = func() { prom.RedisPublishDrops.Inc() }
	go publisher.Run(ctx, engine.Observations())

	// ---- Decision journal ----
	jrnl, err := journal.New(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[bandd] journal: %v", err)
	}
	defer jrnl.Close()

	// ---- Collaborators (paper implementations) ----
	minter := treasury.NewPaperMinter()
	reserves := treasury.NewPaperTreasury(map[string]float64{cfg.ReserveAsset: 0})
	mmVenue := venue.NewPaperVenue(cfg.MinOrderInterval)

	// ---- Band controller ----
	ctrl, err := controller.New(engine, minter, reserves, mmVenue, controller.Config{
		Self:            cfg.SelfIdentity,
		ReserveAsset:    cfg.ReserveAsset,
		EpochDuration:   cfg.EpochDuration,
		BidCapacity:     cfg.BidCapacity,
		AskCapacity:     cfg.AskCapacity,
		MaxBandMultiple: cfg.MaxBandMultiple,
		MinPctThreshold: cfg.MinPctThreshold,
	})
	if err != nil {
		log.Fatalf("[bandd] controller: %v", err)
	}

	// ---- Notifications ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
	}

	ctrl.OnDecision = func(d model.Decision) {
		if err := jrnl.Record(d); err != nil {
			prom.JournalWriteErrors.Inc()
			log.Printf("[bandd] journal write: %v", err)
		}
		if err := notifier.Send(ctx, notification.FromDecision(d)); err != nil {
			log.Printf("[bandd] notify: %v", err)
		}
	}

	// ---- Admin surface ----
	keeper := auth.NewKeeper(cfg.OwnerTOTPSecret, 0)
	adminSrv := admin.New(cfg.AdminAddr, keeper, engine, ctrl, jrnl)
	adminSrv.Start()

	// ---- Liveness probes ----
	health.StartLivenessChecker(ctx, publisher.Client(), jrnl.DB(), 15*time.Second)

	// ---- Heartbeat ----
	hb := heartbeat.New(engine, ctrl, heartbeat.Hooks{
		OnObservation: func(u model.IndicatorUpdate) {
			prom.ObservationsTotal.Inc()
			prom.MovingAverage.Set(u.MovingAverage)
			prom.StandardDeviation.Set(u.StdDev)
			prom.LastPrice.Set(u.Price)
			health.SetEngineInitialized(true)
			health.SetLastObservation(u.TS)
		},
		OnObservationError: func(err error) {
			prom.ObservationErrors.Inc()
			var stale *indicator.StaleFeedError
			if errors.As(err, &stale) {
				prom.StaleFeedRejects.WithLabelValues(stale.Feed).Inc()
			}
		},
		OnDecision: func(d model.Decision) {
			prom.EpochsTotal.Inc()
			prom.OrdersTotal.WithLabelValues(string(d.Side)).Inc()
			prom.PctBand.Set(d.PctBand)
			if d.Side != model.SideNone {
				prom.OrderSize.Observe(d.OrderSize)
			}
		},
		OnDecisionError: func(err error) {
			prom.EpochErrors.Inc()
		},
	})
	go hb.Run(ctx)

	// ---- Graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[bandd] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	adminSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[bandd] bye")
}
