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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tradelab/sim-engine/internal/config"
	"github.com/tradelab/sim-engine/internal/metrics"
	"github.com/tradelab/sim-engine/internal/session"
	"github.com/tradelab/sim-engine/internal/store"
	"github.com/tradelab/sim-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Simulation sessions ---
	sessions := session.NewManager(st, session.Config{
		Instruments:  cfg.Instruments,
		StartingCash: cfg.StartingCash,
		TickInterval: cfg.TickInterval,
		EmitInterval: cfg.EmitInterval,
		SaveDelay:    cfg.SaveDelay,
		HistoryBars:  cfg.HistoryBars,
		TicksPerBar:  cfg.TicksPerBar,
	})

	// --- WebSocket hub + trade service ---
	wsHub := trade.NewWSHub(sessions)
	tradeSvc := trade.NewService(sessions)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"sim-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live candle streaming.
		r.Get("/ws", wsHub.HandleWS)

		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/instruments", tradeSvc.ListInstruments)
			r.Get("/candles/{instrumentKey}", tradeSvc.GetCandles)
			r.Get("/portfolio", tradeSvc.GetPortfolio)
			r.Put("/timeframe", tradeSvc.SetTimeframe)

			r.Post("/trade", tradeSvc.PlaceOrder)
			r.Post("/positions/close", tradeSvc.ClosePosition)
			r.Post("/positions/reverse", tradeSvc.ReversePosition)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sim-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down sim-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	sessions.StopAll()
	fmt.Println("sim-engine stopped")
}
