package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Engine struct {
	Capacity         int
	MatchMode        string // insert | periodic | both
	MatchInterval    time.Duration
	MaxInstrumentLen int
}

type API struct {
	Addr           string
	AllowedOrigins []string
	MetricsEnabled bool
}

type Snapshot struct {
	// Path of the pebble directory; empty keeps snapshots in memory only.
	Path     string
	Interval time.Duration // 0 disables periodic snapshots
}

type Kafka struct {
	Brokers     []string // empty disables the trade publisher
	TradesTopic string
}

// Simulator drives random order flow into the engine.
type Simulator struct {
	Enabled     bool
	Producers   int
	Instruments int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

type Log struct {
	File    string
	Level   string
	Verbose bool
}

type Config struct {
	Engine    Engine
	API       API
	Snapshot  Snapshot
	Kafka     Kafka
	Simulator Simulator
	Log       Log
}

func Default() Config {
	return Config{
		Engine: Engine{
			Capacity:         1024,
			MatchMode:        "both",
			MatchInterval:    50 * time.Millisecond,
			MaxInstrumentLen: 32,
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			MetricsEnabled: true,
		},
		Snapshot: Snapshot{
			Path:     "data/books",
			Interval: 5 * time.Second,
		},
		Kafka: Kafka{
			TradesTopic: "trades",
		},
		Simulator: Simulator{
			Producers:   5,
			Instruments: 1024,
			MinDelay:    10 * time.Millisecond,
			MaxDelay:    100 * time.Millisecond,
		},
		Log: Log{
			File:  "data/engine.log",
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Engine.Capacity = getInt("ENGINE_CAPACITY", cfg.Engine.Capacity)
	cfg.Engine.MatchMode = getEnv("ENGINE_MATCH_MODE", cfg.Engine.MatchMode)
	cfg.Engine.MatchInterval = getMillis("ENGINE_MATCH_INTERVAL_MS", cfg.Engine.MatchInterval)
	cfg.Engine.MaxInstrumentLen = getInt("ENGINE_MAX_INSTRUMENT_LEN", cfg.Engine.MaxInstrumentLen)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.AllowedOrigins = getList("API_ALLOWED_ORIGINS", cfg.API.AllowedOrigins)
	cfg.API.MetricsEnabled = getBool("METRICS_ENABLED", cfg.API.MetricsEnabled)

	if _, ok := os.LookupEnv("SNAPSHOT_PATH"); ok {
		cfg.Snapshot.Path = os.Getenv("SNAPSHOT_PATH")
	}
	cfg.Snapshot.Interval = getMillis("SNAPSHOT_INTERVAL_MS", cfg.Snapshot.Interval)

	cfg.Kafka.Brokers = getList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TradesTopic = getEnv("KAFKA_TRADES_TOPIC", cfg.Kafka.TradesTopic)

	cfg.Simulator.Enabled = getBool("SIM_ENABLED", cfg.Simulator.Enabled)
	cfg.Simulator.Producers = getInt("SIM_PRODUCERS", cfg.Simulator.Producers)
	cfg.Simulator.Instruments = getInt("SIM_INSTRUMENTS", cfg.Simulator.Instruments)
	cfg.Simulator.MinDelay = getMillis("SIM_MIN_DELAY_MS", cfg.Simulator.MinDelay)
	cfg.Simulator.MaxDelay = getMillis("SIM_MAX_DELAY_MS", cfg.Simulator.MaxDelay)

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Verbose = getBool("VERBOSE", cfg.Log.Verbose)
	if cfg.Log.Verbose && os.Getenv("LOG_LEVEL") == "" {
		cfg.Log.Level = "debug"
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getList splits a comma-separated value, dropping blanks.
func getList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
