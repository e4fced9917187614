package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "PAIRLINK_LISTEN_ADDR"
	envVarPublicBaseURL   = "PAIRLINK_PUBLIC_BASE_URL"
	envVarMode            = "PAIRLINK_MODE"
	envVarLogFormat       = "PAIRLINK_LOG_FORMAT"
	envVarLogLevel        = "PAIRLINK_LOG_LEVEL"
	envVarShutdownTimeout = "PAIRLINK_SHUTDOWN_TIMEOUT"

	// Room store knobs.
	envVarRoomTTL       = "PAIRLINK_ROOM_TTL"
	envVarSweepInterval = "PAIRLINK_ROOM_SWEEP_INTERVAL"

	// Request hardening knobs.
	envVarMaxBodyBytes       = "PAIRLINK_MAX_BODY_BYTES"
	envVarRateLimitPerMinute = "PAIRLINK_RATE_LIMIT_PER_MINUTE"
	envVarRateLimitBurst     = "PAIRLINK_RATE_LIMIT_BURST"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

const (
	DefaultMode       = ModeDev
	DefaultListenAddr = ":8080"

	// DefaultRoomTTL bounds how long a room exists regardless of activity.
	// Both sides must complete the exchange within this window.
	DefaultRoomTTL = 120 * time.Second

	// DefaultSweepInterval is how often expired rooms (and idle rate-limit
	// entries) are reclaimed. Correctness never depends on this period; lazy
	// eviction on access is what enforces the TTL.
	DefaultSweepInterval = 5 * time.Second

	DefaultMaxBodyBytes       = 1 << 20
	DefaultRateLimitPerMinute = 60
	DefaultShutdown           = 10 * time.Second
)

type Config struct {
	ListenAddr string

	// PublicBaseURL is the externally reachable base URL used to build join
	// references. When empty, join references are derived from each request's
	// own origin.
	PublicBaseURL string

	Mode      Mode
	LogFormat LogFormat
	LogLevel  slog.Level

	ShutdownTimeout time.Duration

	RoomTTL       time.Duration
	SweepInterval time.Duration

	MaxBodyBytes int64

	// RateLimitPerMinute is the sustained per-source request budget. Zero
	// disables rate limiting (useful in tests).
	RateLimitPerMinute int
	// RateLimitBurst is the bucket capacity; defaults to RateLimitPerMinute.
	RateLimitBurst int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	logFormatDefault := envLogFormat
	if !envLogFormatOK || envLogFormat == "" {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	logLevelDefault := envLogLevel
	if !envLogLevelOK || envLogLevel == "" {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")

	roomTTL, err := envDurationOrDefault(lookup, envVarRoomTTL, DefaultRoomTTL)
	if err != nil {
		return Config{}, err
	}
	sweepInterval, err := envDurationOrDefault(lookup, envVarSweepInterval, DefaultSweepInterval)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	maxBodyBytes, err := envIntOrDefault(lookup, envVarMaxBodyBytes, DefaultMaxBodyBytes)
	if err != nil {
		return Config{}, err
	}
	ratePerMinute, err := envIntOrDefault(lookup, envVarRateLimitPerMinute, DefaultRateLimitPerMinute)
	if err != nil {
		return Config{}, err
	}
	rateBurst, err := envIntOrDefault(lookup, envVarRateLimitBurst, ratePerMinute)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("pairlink-relay", flag.ContinueOnError)
	fs.StringVar(&listenAddr, "listen", listenAddr, "TCP listen address")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "externally reachable base URL for join references")
	modeStr := fs.String("mode", modeDefault, "dev or prod")
	logFormatStr := fs.String("log-format", logFormatDefault, "text or json")
	logLevelStr := fs.String("log-level", logLevelDefault, "debug, info, warn or error")
	fs.DurationVar(&roomTTL, "room-ttl", roomTTL, "room lifetime")
	fs.DurationVar(&sweepInterval, "sweep-interval", sweepInterval, "expired room sweep period")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	mode, err := parseMode(*modeStr)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(*logFormatStr)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return Config{}, fmt.Errorf("invalid %s %q: must be an absolute URL", envVarPublicBaseURL, publicBaseURL)
		}
		publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	}
	if roomTTL <= 0 {
		return Config{}, fmt.Errorf("invalid %s %q: must be positive", envVarRoomTTL, roomTTL)
	}
	if sweepInterval <= 0 {
		return Config{}, fmt.Errorf("invalid %s %q: must be positive", envVarSweepInterval, sweepInterval)
	}
	if maxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must be positive", envVarMaxBodyBytes, maxBodyBytes)
	}
	if ratePerMinute < 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must not be negative", envVarRateLimitPerMinute, ratePerMinute)
	}
	if rateBurst < 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must not be negative", envVarRateLimitBurst, rateBurst)
	}

	return Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,

		RoomTTL:       roomTTL,
		SweepInterval: sweepInterval,

		MaxBodyBytes:       int64(maxBodyBytes),
		RateLimitPerMinute: ratePerMinute,
		RateLimitBurst:     rateBurst,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
