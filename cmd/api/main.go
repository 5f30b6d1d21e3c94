package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/claimcode"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/feed"
	"github.com/safar/go-bookstore/internal/httpapi"
	"github.com/safar/go-bookstore/internal/logging"
	"github.com/safar/go-bookstore/internal/notify"
	"github.com/safar/go-bookstore/internal/service"
	"github.com/safar/go-bookstore/internal/tracing"
	"golang.org/x/sync/errgroup"
)

const serviceName = "bookstore-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load config")
	}

	logger := logging.New(cfg.Log, serviceName)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerName := cfg.Tracing.ServiceName
	if tracerName == "" {
		tracerName = serviceName
	}
	shutdownTracing, err := tracing.InitTracerProvider(tracerName, cfg.Tracing.JaegerEndpoint, logger)
	if err != nil {
		return err
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Msg("connected to database")

	codes, err := claimcode.NewGenerator(cfg.Store.ClaimCodeLength)
	if err != nil {
		return err
	}

	notifier, closeNotifier := newNotifier(cfg.Kafka, logger)
	defer closeNotifier()
	dispatcher := notify.NewDispatcher(notifier, cfg.Store.NotifyTimeout)

	hub := feed.NewHub(logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })

	var broadcaster feed.Broadcaster = feed.NewLocalBroadcaster(hub)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		redisFeed := feed.NewRedisBroadcaster(client, cfg.Redis.FeedChannel, hub, logger)
		g.Go(func() error { return redisFeed.Run(gctx) })
		broadcaster = redisFeed
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("activity feed fanout via redis")
	}

	api := httpapi.NewServer(httpapi.Config{
		Orders:  service.NewOrderService(db, codes, dispatcher, broadcaster),
		Carts:   service.NewCartService(db, cfg.Store.CartMaxQuantity),
		Catalog: service.NewCatalogService(db),
		Reviews: service.NewReviewService(db),
		Policy:  access.NewDBPolicy(db),
		Feed:    hub,
		Ping:    db.PingContext,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http server shutdown")
		}
		dispatcher.Wait()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracer provider shutdown")
		}
		return nil
	})

	return g.Wait()
}

// newNotifier publishes to Kafka when brokers are configured and otherwise
// only logs what would have been sent.
func newNotifier(cfg config.KafkaConfig, logger zerolog.Logger) (notify.Notifier, func()) {
	if len(cfg.Brokers) == 0 {
		logger.Warn().Msg("no kafka brokers configured, notifications are logged only")
		return notify.NewLogNotifier(logger), func() {}
	}

	kafkaNotifier := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Brokers, cfg.NotificationTopic))
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.NotificationTopic).Msg("notifications via kafka")

	return kafkaNotifier, func() {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error().Err(err).Msg("close kafka writer")
		}
	}
}

