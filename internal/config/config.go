package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                 string
	BackendURL           string
	RequestTimeout       time.Duration
	UploadTimeout        time.Duration
	StockPollInterval    time.Duration
	TrendPollInterval    time.Duration
	NewsPollInterval     time.Duration
	InsightsPollInterval time.Duration
	DefaultSymbol        string
	StockPeriod          string
	StockInterval        string
	DefaultTrendQuery    string
	DefaultTrendDays     int
	DefaultChatPrompt    string
	StorageBackend       string
	SessionDB            string
	RedisURL             string
	RateLimitPerMin      int
	CircuitFailLimit     int
	CircuitCooldown      time.Duration
	MaxUploadBytes       int64
	LogLevel             string
	LogFormat            string
	LogFile              string
}

// overlay holds values read from the optional YAML file. Keys are the
// lower-cased environment names, e.g. stock_poll_interval.
type overlay map[string]string

// Load reads DASHBOARD_CONFIG (if set) and then the environment. Environment
// variables win over the file, the file wins over built-in defaults.
func Load() (Config, error) {
	return LoadFile(os.Getenv("DASHBOARD_CONFIG"))
}

func LoadFile(path string) (Config, error) {
	f, err := readOverlay(path)
	if err != nil {
		return Config{}, err
	}

	backend := getEnv("NEXT_PUBLIC_BACKEND_URL", getEnv("NEXT_PUBLIC_API_URL", f.str("backend_url", "http://127.0.0.1:8000")))

	return Config{
		Port:                 getEnv("PORT", f.str("port", "3000")),
		BackendURL:           strings.TrimRight(backend, "/"),
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", f.dur("request_timeout", 15*time.Second)),
		UploadTimeout:        getEnvDuration("UPLOAD_TIMEOUT", f.dur("upload_timeout", 60*time.Second)),
		StockPollInterval:    getEnvDuration("STOCK_POLL_INTERVAL", f.dur("stock_poll_interval", 60*time.Second)),
		TrendPollInterval:    getEnvDuration("TREND_POLL_INTERVAL", f.dur("trend_poll_interval", 300*time.Second)),
		NewsPollInterval:     getEnvDuration("NEWS_POLL_INTERVAL", f.dur("news_poll_interval", 0)),
		InsightsPollInterval: getEnvDuration("INSIGHTS_POLL_INTERVAL", f.dur("insights_poll_interval", 0)),
		DefaultSymbol:        getEnv("DEFAULT_SYMBOL", f.str("default_symbol", "RELIANCE.NS")),
		StockPeriod:          getEnv("STOCK_PERIOD", f.str("stock_period", "6mo")),
		StockInterval:        getEnv("STOCK_INTERVAL", f.str("stock_interval", "1d")),
		DefaultTrendQuery:    getEnv("DEFAULT_TREND_QUERY", f.str("default_trend_query", "artificial intelligence")),
		DefaultTrendDays:     getEnvInt("DEFAULT_TREND_DAYS", f.int("default_trend_days", 7)),
		DefaultChatPrompt:    getEnv("DEFAULT_CHAT_PROMPT", f.str("default_chat_prompt", "Summarize AI news today")),
		StorageBackend:       strings.ToLower(getEnv("STORAGE_BACKEND", f.str("storage_backend", "sqlite"))),
		SessionDB:            getEnv("SESSION_DB", f.str("session_db", defaultSessionDB())),
		RedisURL:             getEnv("REDIS_URL", f.str("redis_url", "redis://localhost:6379")),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MIN", f.int("rate_limit_per_min", 120)),
		CircuitFailLimit:     getEnvInt("CIRCUIT_FAIL_LIMIT", f.int("circuit_fail_limit", 3)),
		CircuitCooldown:      getEnvDuration("CIRCUIT_COOLDOWN", f.dur("circuit_cooldown", 20*time.Second)),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_MB", f.int("max_upload_mb", 20))) << 20,
		LogLevel:             getEnv("LOG_LEVEL", f.str("log_level", "info")),
		LogFormat:            getEnv("LOG_FORMAT", f.str("log_format", "console")),
		LogFile:              getEnv("LOG_FILE", f.str("log_file", "dashboard.log")),
	}, nil
}

func readOverlay(path string) (overlay, error) {
	if path == "" {
		return overlay{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	out := make(overlay, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (o overlay) str(key, def string) string {
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

func (o overlay) int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (o overlay) dur(key string, def time.Duration) time.Duration {
	v, ok := o[key]
	if !ok {
		return def
	}
	return parseDuration(v, def)
}

func defaultSessionDB() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "aiworker-session.db"
	}
	return filepath.Join(dir, "aiworker", "session.db")
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return parseDuration(v, def)
}

// parseDuration accepts whole seconds ("60") or a Go duration ("1m").
func parseDuration(v string, def time.Duration) time.Duration {
	if i, err := strconv.Atoi(v); err == nil {
		if i < 0 {
			return def
		}
		return time.Duration(i) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
