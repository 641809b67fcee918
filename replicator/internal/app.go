package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/clients"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/config"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/kafka"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/rest"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/services"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// relationshipBackend is what both relationship stores provide.
type relationshipBackend interface {
	services.RelationshipReader
	rest.RelationshipStore
}

// App centralizes dependency wiring for the replicator service.
type App struct {
	cfg    config.Config
	logger zerolog.Logger

	redis         *redis.Client
	pg            *pgxpool.Pool
	jobs          *store.JobStore
	relationships relationshipBackend
	consumer      *kafka.JobConsumer
	jobPublisher  *kafka.JobPublisher
	results       *kafka.ResultPublisher
	worker        *services.JobWorker
}

// NewApp builds an App with all required dependencies.
func NewApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	a := &App{
		cfg:    cfg,
		logger: logger,
		redis:  redisClient,
		jobs:   store.NewJobStore(redisClient, cfg.JobKeyPrefix),
	}

	switch cfg.RelationshipBackend {
	case config.RelationshipBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pg = pool
		a.relationships = store.NewPGRelationshipStore(pool)
	default:
		a.relationships = store.NewRelationshipStore(redisClient, cfg.RelationshipKeyPrefix)
	}

	a.consumer = kafka.NewJobConsumer(cfg, logger)
	a.jobPublisher = kafka.NewJobPublisher(cfg)
	a.results = kafka.NewResultPublisher(cfg)

	replication := services.NewReplicationService(
		a.jobs,
		a.relationships,
		clients.NewAccountsClient(cfg.AccountsBaseURL, cfg.ServiceToken, cfg.HTTPTimeout),
		clients.NewExecutionClient(cfg.ExecutionBaseURL, cfg.ServiceToken, cfg.HTTPTimeout),
		a.results,
		services.Options{
			FollowerTimeout:        cfg.FollowerTimeout,
			MaxConcurrentFollowers: cfg.MaxConcurrentFollowers,
		},
		logger,
	)
	a.worker = services.NewJobWorker(a.consumer, replication, logger)
	return a, nil
}

// Run starts background services and blocks until ctx cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("job worker exited with error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.runHTTPServer(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (a *App) runHTTPServer(ctx context.Context) error {
	r, srv := rest.NewServer(a.cfg)
	rest.NewJobController(a.jobs, a.jobPublisher).RegisterJobRoutes(r.Group(""))
	rest.NewRelationshipController(a.relationships).RegisterRelationshipRoutes(r.Group(""))
	rest.NewCommissionController().RegisterCommissionRoutes(r.Group(""))

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", srv.Addr).Msg("HTTP server started")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	// App context shutdown:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		err := <-serverErr
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	// HTTP server error:
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *App) cleanup() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Kafka consumer")
		}
	}
	if a.jobPublisher != nil {
		if err := a.jobPublisher.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Kafka job publisher")
		}
	}
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Kafka result publisher")
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("error closing Redis client")
		}
	}
}
