package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/feed-service/config"
	"github.com/cwrk-planet/feed-service/internal/memory"
	"github.com/cwrk-planet/feed-service/internal/postgres"
	"github.com/cwrk-planet/feed-service/internal/repository"
	"github.com/cwrk-planet/feed-service/internal/service"
	"github.com/cwrk-planet/feed-service/internal/sqlite"
	"github.com/cwrk-planet/feed-service/internal/telemetry"
	grpcx "github.com/cwrk-planet/feed-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/feed-service/internal/transport/http"
	"github.com/cwrk-planet/feed-service/internal/transport/ws"
	"github.com/cwrk-planet/feed-service/pkg/logger"

	"google.golang.org/grpc"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	defer func() { _ = logger.Sync() }()

	slog.Info("starting feed-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx := context.Background()

	// --- telemetry ---
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Logging.Service,
		Version:     cfg.Logging.Version,
	})
	if err != nil {
		slog.Error("telemetry setup", slog.Any("err", err))
		os.Exit(1)
	}

	// --- storage ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("storage", slog.String("driver", cfg.Storage.Driver), slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// --- services ---
	limits := service.Limits{
		MaxMessageLength: cfg.Feed.MaxMessageLength,
		MaxPollOptions:   cfg.Feed.MaxPollOptions,
	}
	chatSvc := service.NewChatService(store, limits)
	pollSvc := service.NewPollService(store, limits)

	// --- WS registry & server ---
	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry)
	wsHandler := ws.NewHandler(registry, dispatcher, chatSvc, pollSvc)
	wsServer := ws.NewServer(wsHandler, ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteWait:      cfg.WS.WriteWait,
		SendBuffer:     cfg.WS.SendBuffer,
		ReadLimit:      cfg.WS.ReadLimit,
		CommandTimeout: cfg.WS.CommandTimeout,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(chatSvc, pollSvc, dispatcher)
	router := httpx.NewRouter(handler, wsServer, cfg.HTTP.RequestTimeout)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- gRPC ---
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		srv := grpcx.NewGRPCServer()
		grpcx.Register(srv, grpcx.NewServer(chatSvc, dispatcher))
		grpcServer = srv

		go func() {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				errCh <- err
				return
			}
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := srv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", slog.Any("err", err))
	}
	if err := shutdownTracing(ctxShutdown); err != nil {
		slog.Warn("telemetry shutdown", slog.Any("err", err))
	}
	slog.Info("stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.EventStore, error) {
	opts := repository.Options{TimeLayout: cfg.Feed.TimeLayout}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLite.Path, opts)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return postgres.NewStore(db, opts), nil
	case config.DriverMemory:
		return memory.New(opts), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
