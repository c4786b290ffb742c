package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the signal core.
type Config struct {
	Port string

	// Market data
	BinanceTestnet bool
	UseMockFeed    bool
	VWAPWindow     int

	// Persistence
	DBPath       string
	StoreBackend string // "file" (default) or "sqlite"
	StoreDir     string // root for the file backend

	// Execution costs (percent, e.g. 0.1 = 0.1%)
	FeePct      float64
	SlippagePct float64

	// Validation limits
	MinProfitPct       float64
	MinStopPct         float64
	MaxStopPct         float64
	MaxLifetimeMinutes int

	// Risk gate
	MaxConcurrentSignals int
	MaxPerSymbol         int

	// Drivers
	TickSeconds          int
	ScheduleAwaitMinutes int // 0 = scheduled signals wait up to their own lifetime
	RunsFile             string

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		BinanceTestnet:       getEnv("BINANCE_TESTNET", "false") == "true",
		UseMockFeed:          getEnv("USE_MOCK_FEED", "true") == "true",
		VWAPWindow:           getEnvInt("VWAP_WINDOW", 5),
		DBPath:               getEnv("DB_PATH", "./data/signals.db"),
		StoreBackend:         getEnv("STORE_BACKEND", "file"),
		StoreDir:             getEnv("STORE_DIR", "./data/stores"),
		FeePct:               getEnvFloat("FEE_PCT", 0.1),
		SlippagePct:          getEnvFloat("SLIPPAGE_PCT", 0.1),
		MinProfitPct:         getEnvFloat("MIN_PROFIT_PCT", 0.5),
		MinStopPct:           getEnvFloat("MIN_STOP_PCT", 0.5),
		MaxStopPct:           getEnvFloat("MAX_STOP_PCT", 20),
		MaxLifetimeMinutes:   getEnvInt("MAX_LIFETIME_MINUTES", 1440),
		MaxConcurrentSignals: getEnvInt("MAX_CONCURRENT_SIGNALS", 10),
		MaxPerSymbol:         getEnvInt("MAX_PER_SYMBOL", 1),
		TickSeconds:          getEnvInt("TICK_SECONDS", 15),
		ScheduleAwaitMinutes: getEnvInt("SCHEDULE_AWAIT_MINUTES", 0),
		RunsFile:             getEnv("RUNS_FILE", ""),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
