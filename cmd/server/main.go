package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/clubhub/marketplace/internal/api/http"
	"github.com/clubhub/marketplace/internal/application/audit"
	"github.com/clubhub/marketplace/internal/application/auth"
	"github.com/clubhub/marketplace/internal/application/listing"
	"github.com/clubhub/marketplace/internal/application/member"
	"github.com/clubhub/marketplace/internal/application/negotiation"
	appNotification "github.com/clubhub/marketplace/internal/application/notification"
	"github.com/clubhub/marketplace/internal/application/rating"
	"github.com/clubhub/marketplace/internal/config"
	domainAudit "github.com/clubhub/marketplace/internal/domain/audit"
	"github.com/clubhub/marketplace/internal/domain/item"
	domainMember "github.com/clubhub/marketplace/internal/domain/member"
	"github.com/clubhub/marketplace/internal/domain/notification"
	"github.com/clubhub/marketplace/internal/domain/offer"
	domainRating "github.com/clubhub/marketplace/internal/domain/rating"
	"github.com/clubhub/marketplace/internal/infrastructure/memory"
	"github.com/clubhub/marketplace/internal/infrastructure/postgres"
	"github.com/clubhub/marketplace/internal/infrastructure/redisbus"
	"github.com/clubhub/marketplace/internal/infrastructure/sse"
)

type repositories struct {
	items   item.Repository
	offers  offer.Repository
	ratings domainRating.Repository
	members domainMember.Repository
	audits  domainAudit.Repository
	close   func()
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	logger = logger.Level(cfg.LogLevel)

	ctx := context.Background()
	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("store error")
	}
	defer repos.close()

	// notification sinks. With Redis every instance publishes to the channel
	// and feeds its own hub from the subscription, so a member connected to
	// any instance sees every event exactly once.
	sseHub := sse.NewHub()
	sinks := []notification.Notifier{sseHub}
	subCtx, stopSub := context.WithCancel(ctx)
	defer stopSub()
	if cfg.RedisAddr != "" {
		publisher, err := redisbus.Dial(ctx, cfg.RedisAddr,
			redisbus.WithChannel(cfg.RedisChannel),
			redisbus.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis error")
		}
		defer publisher.Close()
		sinks = []notification.Notifier{publisher}
		go func() {
			err := publisher.Subscribe(subCtx, func(ev *notification.Event) {
				_ = sseHub.Notify(subCtx, ev)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis subscription ended")
			}
		}()
	}
	dispatcher := appNotification.NewDispatcher(logger, sinks...)

	// services
	auditSvc := audit.NewService(repos.audits, logger, cfg.AuditSigningKey)
	memberSvc := member.NewService(repos.members, logger)
	authSvc := auth.NewService(repos.members, []byte(cfg.JWTSecret), cfg.JWTTTL, logger)
	listingSvc := listing.NewService(repos.items, repos.offers, auditSvc, logger)
	engine := negotiation.NewService(repos.items, repos.offers, listingSvc, auditSvc, dispatcher, logger)
	ratingSvc := rating.NewService(repos.items, repos.offers, repos.ratings, auditSvc, dispatcher, logger)

	apiServer := httpapi.NewServer(httpapi.Deps{
		Auth:        authSvc,
		Members:     memberSvc,
		Listings:    listingSvc,
		Negotiation: engine,
		Ratings:     ratingSvc,
		Audit:       auditSvc,
		Hub:         sseHub,
		Logger:      logger,
	})

	// WriteTimeout stays unset so the event stream is not cut; handlers
	// carry their own request timeout.
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.Store).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")
	stopSub()
	sseHub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	dispatcher.Wait()
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn().Msg("using in-memory store; state is lost on restart")
		store := memory.NewStore()
		return &repositories{
			items:   store.Items(),
			offers:  store.Offers(),
			ratings: store.Ratings(),
			members: store.Members(),
			audits:  store.AuditLogs(),
			close:   func() {},
		}, nil
	}

	if err := postgres.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &repositories{
		items:   postgres.NewItemRepository(pool),
		offers:  postgres.NewOfferRepository(pool),
		ratings: postgres.NewRatingRepository(pool),
		members: postgres.NewMemberRepository(pool),
		audits:  postgres.NewAuditRepository(pool),
		close:   pool.Close,
	}, nil
}
