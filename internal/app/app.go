package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/abtime"
	"github.com/thejerf/suture/v4"

	"workbridge/internal/auth"
	"workbridge/internal/cache"
	"workbridge/internal/config"
	"workbridge/internal/database"
	"workbridge/internal/event"
	"workbridge/internal/handler"
	"workbridge/internal/middleware"
	"workbridge/internal/observability"
	"workbridge/internal/repository"
	"workbridge/internal/router"
	"workbridge/internal/service"
	"workbridge/internal/websocket"
)

const serviceName = "workbridge"

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

// New connects every dependency and assembles the HTTP server. Redis and
// Kafka are optional; without them sessions read straight from Postgres and
// notifications are only logged.
func New(cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.cleanup()
		}
	}()

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	})

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.addCleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	checks := map[string]handler.Check{"database": db.Health}

	var redisClient cache.RedisClient
	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.addCleanup(func() { _ = client.Close() })
		redisClient = client
		checks["redis"] = client.Ping
		slog.Info("redis session cache enabled", "addr", cfg.RedisAddr)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	proposalRepo := repository.NewProposalRepository(pool)
	transactionRepo := repository.NewTransactionRepository(pool)

	clock := abtime.NewRealTime()
	codec, err := auth.NewCodec(cfg.JWTSecret, auth.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	compat, err := auth.NewCompatVerifier(cfg.JWTSecret, auth.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize edge verifier: %w", err)
	}

	sessionUsers := cache.NewSessionUsers(userRepo, redisClient, cfg.UserCacheTTL)
	sessions := auth.NewSessions(codec, cfg.SessionCookieName, sessionUsers)
	edgeSessions := auth.NewSessions(compat, cfg.SessionCookieName, nil)
	cookie := auth.CookieConfig{Name: cfg.SessionCookieName, Secure: cfg.CookieSecure, TTL: cfg.SessionTTL}

	bus := event.NewBus()
	authService := service.NewAuthService(userRepo, codec, sessionUsers, bus, service.AuthConfig{
		SessionTTL:       cfg.SessionTTL,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutDuration:  cfg.LockoutDuration,
		BcryptCost:       cfg.BcryptCost,
	}, clock)
	if err := authService.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	projectService := service.NewProjectService(projectRepo, bus)
	proposalService := service.NewProposalService(projectRepo, proposalRepo, bus)
	escrowService := service.NewEscrowService(transactionRepo, bus)

	var writer event.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		kafkaWriter := event.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		writer = kafkaWriter
		a.addCleanup(func() {
			if err := kafkaWriter.Close(); err != nil {
				slog.Warn("kafka writer close failed", "error", err)
			}
		})
		slog.Info("kafka notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	hub := websocket.NewHub(bus, cfg.CORSOrigins)
	a.startSupervisor(event.NewForwarder(bus, writer, cfg.KafkaTopic), hub)

	metrics := observability.NewMetrics()
	appRouter := router.New(cfg, metrics, edgeSessions, middleware.NewAuthMiddleware(sessions, metrics), router.Handlers{
		Auth:    handler.NewAuthHandler(authService, sessions, cookie),
		Users:   handler.NewUserHandler(authService),
		Project: handler.NewProjectHandler(projectService, proposalService),
		Escrow:  handler.NewEscrowHandler(escrowService),
		Health:  handler.NewHealthHandler(checks),

		Notifications: hub,
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

// startSupervisor runs the background services under suture, which restarts
// any that fail.
func (a *App) startSupervisor(services ...suture.Service) {
	supervisor := suture.New("workbridge", suture.Spec{
		EventHook: func(e suture.Event) {
			slog.Warn("supervisor event", "event", e.String())
		},
	})
	for _, svc := range services {
		supervisor.Add(svc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := supervisor.ServeBackground(ctx)

	a.addCleanup(func() {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("supervisor stopped", "error", err)
		}
	})
}

func (a *App) addCleanup(fn func()) {
	a.cleanupFuncs = append(a.cleanupFuncs, fn)
}

// cleanup runs in reverse order of registration.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
