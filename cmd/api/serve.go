package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-tracker/internal/api/http"
	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/classifier"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/persistence"
	"github.com/spec-kit/ticket-tracker/internal/ratelimit"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (default)",
	RunE:  runServe,
}

type repositories struct {
	users    repository.UserRepository
	tickets  repository.TicketRepository
	comments repository.CommentRepository
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}
	clock := func() time.Time { return time.Now().In(loc) }

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect postgres", zap.Error(err))
		return err
	}
	defer pg.Close()

	var repos repositories
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Error("failed to run migrations", zap.Error(err))
				return err
			}
		}
		pool := pg.PoolHandle()
		repos = repositories{
			users:    repository.NewUserRepository(pool),
			tickets:  repository.NewTicketRepository(pool),
			comments: repository.NewCommentRepository(pool),
		}
	} else {
		store := repository.NewMemoryStore(clock)
		repos = repositories{users: store.Users(), tickets: store.Tickets(), comments: store.Comments()}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	revocations := auth.NewRedisRevocationStore(redis.Handle())
	limiter := ratelimit.New(redis.Handle(), "classifier", cfg.RateLimit.ClassifierPerMinute, time.Minute, logger)

	metrics := observability.NewMetrics()

	var completer classifier.Completer
	if c := classifier.NewAnthropicCompleter(cfg.Classifier.APIKey, cfg.Classifier.Model); c != nil {
		completer = c
	} else {
		logger.Info("ANTHROPIC_API_KEY not provided; classification disabled")
	}
	bridge := classifier.NewBridge(completer, cfg.Classifier.Timeout(), logger, metrics)

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   repos.users,
		Revocation: revocations,
		Logger:     logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repos.tickets,
		CommentRepo: repos.comments,
		UserRepo:    repos.users,
		Classifier:  bridge,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Clock:       clock,
	})
	commentService := service.NewCommentService(service.CommentDependencies{
		TicketRepo:  repos.tickets,
		CommentRepo: repos.comments,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Clock:       clock,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.users, revocations, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:           handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:            handlers.NewUsersHandler(authService),
		Staff:            handlers.NewStaffHandler(authService),
		Tickets:          handlers.NewTicketsHandler(ticketService),
		Comments:         handlers.NewCommentsHandler(commentService),
		AuthMiddleware:   authMiddleware,
		ClassifierLimits: limiter,
		Metrics:          metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		logger.Error("fiber listen", zap.Error(err))
		return err
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
