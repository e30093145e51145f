// Package config loads engine configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/model"
)

// Config holds everything the server needs to start.
type Config struct {
	Port        string
	DatabaseURL string // empty → in-memory store
	RedisURL    string // empty → no cache layer

	StartingCash decimal.Decimal
	TickInterval time.Duration
	EmitInterval time.Duration
	SaveDelay    time.Duration
	HistoryBars  int
	TicksPerBar  int

	Instruments []model.Instrument
}

// Load reads configuration from the environment. A .env file, if present,
// is merged in first; real environment variables win.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	return Config{
		Port:         envOr("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		StartingCash: envDecimal("STARTING_CASH", decimal.NewFromInt(100000)),
		TickInterval: envMillis("TICK_INTERVAL_MS", 200*time.Millisecond),
		EmitInterval: envMillis("EMIT_INTERVAL_MS", time.Second),
		SaveDelay:    envMillis("SAVE_DELAY_MS", 1500*time.Millisecond),
		HistoryBars:  envInt("HISTORY_BARS", 180),
		TicksPerBar:  envInt("TICKS_PER_BAR", 30),
		Instruments:  DefaultInstruments(),
	}
}

// DefaultInstruments is the static instrument reference table. LastPrice
// seeds each instrument's synthetic price process.
func DefaultInstruments() []model.Instrument {
	return []model.Instrument{
		{
			Key:       "BTCUSD",
			Symbol:    "BTC/USD",
			Name:      "Bitcoin",
			TickSize:  decimal.NewFromFloat(0.01),
			LotSize:   decimal.NewFromFloat(0.0001),
			LastPrice: decimal.NewFromInt(50000),
		},
		{
			Key:       "ETHUSD",
			Symbol:    "ETH/USD",
			Name:      "Ethereum",
			TickSize:  decimal.NewFromFloat(0.01),
			LotSize:   decimal.NewFromFloat(0.001),
			LastPrice: decimal.NewFromInt(2500),
		},
		{
			Key:       "EURUSD",
			Symbol:    "EUR/USD",
			Name:      "Euro / US Dollar",
			TickSize:  decimal.NewFromFloat(0.00001),
			LotSize:   decimal.NewFromInt(1000),
			LastPrice: decimal.NewFromFloat(1.085),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer env var, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func envMillis(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		slog.Warn("invalid duration env var, using default", "key", key, "value", v)
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		slog.Warn("invalid decimal env var, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
