package config

import (
	"log/slog"
	"strings"
	"time"
)

// DashboardConfig holds runtime configuration for the dashboard service.
type DashboardConfig struct {
	Environment         string
	Addr                string
	APIBaseURL          string
	PollInterval        time.Duration
	ClockInterval       time.Duration
	RequestTimeout      time.Duration
	FetchBackoffMax     time.Duration
	BucketWidth         time.Duration
	BucketCount         int
	RecencyWindow       time.Duration
	AnimatorMode        string
	AnimatorCapacity    int
	AnimatorFPS         int
	AnimatorSpawnChance float64
	FrameBroadcastEvery int
	RateLimitRedisAddr  string
	RateLimitRedisPass  string
	RateLimitRedisDB    int
	CommandRateLimit    int
	AddressRateLimit    int
	OperatorJWTSecret   string
	TracingEnabled      bool
	LogLevel            slog.Level
}

// LoadDashboardConfig constructs a DashboardConfig from environment variables.
func LoadDashboardConfig() DashboardConfig {
	LoadDotEnv()
	return DashboardConfig{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("DASHBOARD_ADDR", ":8080"),
		APIBaseURL:          GetString("NETWATCH_API_URL", "http://localhost:5000"),
		PollInterval:        GetMillis("POLL_INTERVAL_MS", 2*time.Second),
		ClockInterval:       GetMillis("CLOCK_INTERVAL_MS", time.Second),
		RequestTimeout:      GetMillis("REQUEST_TIMEOUT_MS", 5*time.Second),
		FetchBackoffMax:     GetMillis("FETCH_BACKOFF_MAX_MS", 0),
		BucketWidth:         GetSeconds("BUCKET_WIDTH_SECONDS", 10*time.Second),
		BucketCount:         GetInt("BUCKET_COUNT", 12),
		RecencyWindow:       GetSeconds("RECENCY_WINDOW_SECONDS", 10*time.Second),
		AnimatorMode:        strings.ToLower(strings.TrimSpace(GetString("ANIMATOR_MODE", "telemetry"))),
		AnimatorCapacity:    GetInt("ANIMATOR_CAPACITY", 64),
		AnimatorFPS:         GetInt("ANIMATOR_FPS", 60),
		AnimatorSpawnChance: GetFloat("ANIMATOR_SPAWN_CHANCE", 0.05),
		FrameBroadcastEvery: GetInt("FRAME_BROADCAST_EVERY", 4),
		RateLimitRedisAddr:  GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:  GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:    GetInt("RATE_LIMIT_REDIS_DB", 0),
		CommandRateLimit:    GetInt("COMMAND_RATE_LIMIT", 30),
		AddressRateLimit:    GetInt("ADDRESS_COMMAND_RATE_LIMIT", 6),
		OperatorJWTSecret:   strings.TrimSpace(GetString("OPERATOR_JWT_SECRET", "")),
		TracingEnabled:      GetBool("TRACING_ENABLED", false),
		LogLevel:            ParseLogLevel(GetString("LOG_LEVEL", "info")),
	}
}

// ParseLogLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FrameInterval converts the configured FPS into a ticker period.
func (c DashboardConfig) FrameInterval() time.Duration {
	fps := c.AnimatorFPS
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}
