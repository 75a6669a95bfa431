package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/passwordless/api/handler"
	"github.com/fastygo/passwordless/domain"
	"github.com/fastygo/passwordless/internal/config"
	"github.com/fastygo/passwordless/internal/infrastructure/mail"
	"github.com/fastygo/passwordless/internal/infrastructure/monitor"
	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
	pgInfra "github.com/fastygo/passwordless/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/passwordless/internal/infrastructure/redis"
	"github.com/fastygo/passwordless/internal/magiclink"
	"github.com/fastygo/passwordless/internal/middleware"
	"github.com/fastygo/passwordless/internal/router"
	"github.com/fastygo/passwordless/internal/services"
	"github.com/fastygo/passwordless/internal/services/lifecycle"
	"github.com/fastygo/passwordless/internal/session"
	"github.com/fastygo/passwordless/pkg/clock"
	"github.com/fastygo/passwordless/pkg/httpcontext"
	"github.com/fastygo/passwordless/pkg/logger"
	"github.com/fastygo/passwordless/repository"
	"github.com/fastygo/passwordless/repository/memory"
	"github.com/fastygo/passwordless/repository/postgres"
	redisRepo "github.com/fastygo/passwordless/repository/redis"
	authUC "github.com/fastygo/passwordless/usecase/auth"
	profileUC "github.com/fastygo/passwordless/usecase/profile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen()
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			zapLogger.Error("graceful shutdown error", zap.Error(err))
		}
	}()

	var checks []monitor.Check

	users, directoryChecks, err := openDirectory(appCtx, cfg, manager, zapLogger)
	if err != nil {
		return err
	}
	checks = append(checks, directoryChecks...)

	transport, err := mail.New(cfg.Mail, zapLogger)
	if err != nil {
		return fmt.Errorf("mail transport: %w", err)
	}
	if closer, ok := transport.(interface{ Close() error }); ok {
		manager.Register("mail_transport", func(ctx context.Context) error {
			return closer.Close()
		})
	}
	checks = append(checks, monitor.Check{Name: "mail", Ping: transport.Ping})

	var store *outbox.Store
	if cfg.Outbox.Enabled {
		store, err = outbox.Open(cfg.Outbox.Path, "")
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
		manager.Register("outbox", func(ctx context.Context) error {
			return store.Close()
		})
		checks = append(checks, monitor.OutboxCheck(store))
	}

	mon := monitor.New(cfg.Context.MonitorInterval, zapLogger, checks...)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	processor := services.NewOutboxProcessor(
		store,
		transport,
		mon.Component("mail"),
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Outbox.SyncInterval,
			BatchSize:  cfg.Outbox.BatchSize,
			MaxRetries: cfg.Outbox.MaxRetry,
			Retention:  time.Duration(cfg.Outbox.RetentionHours) * time.Hour,
		},
	)
	processor.Start()
	manager.Register("outbox_processor", func(ctx context.Context) error {
		processor.Stop(ctx)
		return nil
	})

	sessionOpts := session.Options{
		Secret: []byte(cfg.Auth.SigningSecret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.SessionTTL,
		Clock:  clock.Real,
	}
	sessionIssuer, err := session.NewIssuer(sessionOpts)
	if err != nil {
		return err
	}
	authenticator, err := session.NewAuthenticator(sessionOpts)
	if err != nil {
		return err
	}
	cookies := session.CookieOptions{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure}

	authUseCase := authUC.New(
		users,
		magiclink.NewIssuer(cfg.Auth.TokenTTL, clock.Real),
		sessionIssuer,
		services.NewMailBridge(processor, cfg.Mail.Subject, cfg.Auth.TokenTTL),
		clock.Real,
		authUC.Config{
			BaseURL:      cfg.Auth.BaseURL,
			DefaultQuota: domain.Quota{AnalysisLimit: cfg.Quota.AnalysisLimit},
		},
		zapLogger,
	)
	profileUseCase := profileUC.New(users, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, cookies, ctxAdapter, zapLogger),
		Profile: apiHandler.NewProfileHandler(profileUseCase, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	r := router.New(handlers, middleware.SessionAuth(authenticator, cookies, zapLogger))

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("directory", cfg.Directory.Driver),
			zap.String("mail", transport.Name()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	return manager.Wait(appCtx)
}

// openDirectory connects the configured user directory and returns the
// health checks that watch it.
func openDirectory(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, zapLogger *zap.Logger) (repository.UserRepository, []monitor.Check, error) {
	var checks []monitor.Check

	if cfg.Redis.Enabled {
		redisClient, err := redisInfra.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection: %w", err)
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
		checks = append(checks, monitor.RedisCheck("redis", redisClient, cfg.Directory.Driver == config.DirectoryRedis))

		if cfg.Directory.Driver == config.DirectoryRedis {
			return redisRepo.NewUserRepository(redisClient), checks, nil
		}
	}

	switch cfg.Directory.Driver {
	case config.DirectoryPostgres:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connection: %w", err)
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})
		checks = append(checks, monitor.PostgresCheck("postgres", pool))
		return postgres.NewUserRepository(pool), checks, nil
	case config.DirectoryMemory:
		zapLogger.Warn("using in-memory user directory; accounts are lost on restart")
		return memory.NewUserRepository(), checks, nil
	default:
		return nil, nil, fmt.Errorf("unsupported directory driver %q", cfg.Directory.Driver)
	}
}
