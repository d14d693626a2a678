package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/papertrade/session-engine/internal/archive"
	"github.com/papertrade/session-engine/internal/broadcast"
	"github.com/papertrade/session-engine/internal/clock"
	"github.com/papertrade/session-engine/internal/config"
	"github.com/papertrade/session-engine/internal/metrics"
	"github.com/papertrade/session-engine/internal/seed"
	"github.com/papertrade/session-engine/internal/store"
	"github.com/papertrade/session-engine/internal/trade"
)

func main() {
	cfg, err := config.LoadServerFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Initialize store ---
	st := store.New(
		store.WithTickUnit(cfg.TickInterval),
		store.WithBcryptCost(cfg.BcryptCost),
	)

	payload, found, err := seed.ReadFile(cfg.InitDataPath)
	switch {
	case err != nil:
		slog.Error("initial data unreadable", "path", cfg.InitDataPath, "err", err)
		os.Exit(1)
	case !found:
		slog.Warn("initial data not found, starting empty", "path", cfg.InitDataPath)
	default:
		if err := seed.Apply(st, payload); err != nil {
			slog.Error("initial data rejected", "path", cfg.InitDataPath, "err", err)
			os.Exit(1)
		}
		slog.Info("initial data loaded", "users", len(payload.Users), "groups", len(payload.Groups))
	}

	// --- Market data fan-out ---
	hub := broadcast.NewHub(logger)
	go hub.Run(ctx)
	publishers := broadcast.Multi{hub}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		publishers = append(publishers, broadcast.NewRedisPublisher(rdb, cfg.PublishTimeout))
		slog.Info("Redis market publisher enabled")
	}

	// --- Archive ---
	var recorder archive.Recorder = archive.Nop{}
	if cfg.DatabaseURL != "" {
		pool, err := archive.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := archive.NewPostgresRecorder(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("archive schema setup failed", "err", err)
			os.Exit(1)
		}
		recorder = pg
		slog.Info("connected to PostgreSQL, finished groups will be archived")
	} else {
		slog.Warn("DATABASE_URL not set, finished groups will not be archived")
	}

	// --- Market clocks ---
	runner := clock.NewRunner(ctx, st, publishers, recorder, clock.Config{
		Interval:       cfg.TickInterval,
		PublishTimeout: cfg.PublishTimeout,
	}, logger)

	// --- Trade service ---
	tradeSvc := trade.NewService(st, runner, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"session-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for per-group market updates.
		r.Get("/ws", hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			tradeSvc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("session-engine listening", "addr", cfg.Addr, "tick_interval", cfg.TickInterval.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down session-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	// Stopping the clocks finishes and archives every running group.
	stop()
	runner.Wait()
	fmt.Println("session-engine stopped")
}
