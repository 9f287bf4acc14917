// Command server runs the auth API over the JSON data file.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/config"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/logging"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/queue"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/repository"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/router"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/service"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DataFile)
	if err != nil {
		return err
	}

	stores := service.Stores{
		Users:     repository.NewUserRepo(db),
		Refresh:   repository.NewTokenRepo(db),
		Blacklist: repository.NewBlacklistRepo(db),
		Resets:    repository.NewResetRepo(db),
	}
	codec, err := utils.NewTokenCodec(cfg.JWTSecret, cfg.AccessTTL())
	if err != nil {
		return err
	}

	var notifier service.Notifier = service.LogNotifier{Log: logger}
	if cfg.RabbitMQURL != "" {
		notifier = service.NewRabbitNotifier(cfg.RabbitMQURL, logger)
	}

	local := service.NewLocalAuth(stores, codec, utils.NewPasswordHasher(cfg.BcryptCost), notifier, cfg.ResetTTL(), logger)
	var idp service.IdentityProvider
	if cfg.AuthProvider == service.ProviderFederated {
		idp = service.NewHTTPIdentityProvider(cfg.IdentityProviderURL, cfg.IdentityProviderTimeout)
	}
	auth, err := service.NewAuthService(cfg.AuthProvider, local, idp)
	if err != nil {
		return err
	}

	rdb := config.NewRedisClient(cfg.Redis, logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	e := router.New(router.Deps{
		Auth:      auth,
		DB:        db,
		RateLimit: cfg.RateLimit,
		Redis:     rdb,
		Log:       logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("auth_provider", cfg.AuthProvider),
			zap.String("data_file", db.Path()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	sweeper := &service.Sweeper{
		Blacklist: stores.Blacklist,
		Refresh:   stores.Refresh,
		Resets:    stores.Resets,
		Interval:  cfg.SweepInterval,
		Log:       logger,
	}
	g.Go(func() error { return sweeper.Run(gctx) })
	if cfg.MailConsumerEnabled {
		g.Go(func() error {
			err := queue.StartMailConsumer(gctx, cfg.RabbitMQURL, cfg.MailLogDir, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
