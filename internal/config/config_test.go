package config

import (
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(func(string) (string, bool) { return "", false }, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("listenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.RoomTTL != DefaultRoomTTL {
		t.Fatalf("roomTTL=%v, want %v", cfg.RoomTTL, DefaultRoomTTL)
	}
	if cfg.SweepInterval != DefaultSweepInterval {
		t.Fatalf("sweepInterval=%v, want %v", cfg.SweepInterval, DefaultSweepInterval)
	}
	if cfg.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("maxBodyBytes=%d, want %d", cfg.MaxBodyBytes, int(DefaultMaxBodyBytes))
	}
	if cfg.RateLimitPerMinute != DefaultRateLimitPerMinute {
		t.Fatalf("rateLimitPerMinute=%d, want %d", cfg.RateLimitPerMinute, DefaultRateLimitPerMinute)
	}
	if cfg.RateLimitBurst != DefaultRateLimitPerMinute {
		t.Fatalf("rateLimitBurst=%d, want %d", cfg.RateLimitBurst, DefaultRateLimitPerMinute)
	}
	if cfg.PublicBaseURL != "" {
		t.Fatalf("publicBaseURL=%q, want empty", cfg.PublicBaseURL)
	}
}

func TestProdModeDefaultsToJSONLogs(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMode: "prod",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarListenAddr:         "127.0.0.1:9000",
		envVarPublicBaseURL:      "https://meet.example.com/",
		envVarRoomTTL:            "90s",
		envVarSweepInterval:      "2s",
		envVarMaxBodyBytes:       "4096",
		envVarRateLimitPerMinute: "30",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listenAddr=%q", cfg.ListenAddr)
	}
	if cfg.PublicBaseURL != "https://meet.example.com" {
		t.Fatalf("publicBaseURL=%q, want trailing slash trimmed", cfg.PublicBaseURL)
	}
	if cfg.RoomTTL != 90*time.Second {
		t.Fatalf("roomTTL=%v", cfg.RoomTTL)
	}
	if cfg.SweepInterval != 2*time.Second {
		t.Fatalf("sweepInterval=%v", cfg.SweepInterval)
	}
	if cfg.MaxBodyBytes != 4096 {
		t.Fatalf("maxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Fatalf("rateLimitPerMinute=%d", cfg.RateLimitPerMinute)
	}
	// Burst follows the per-minute budget unless set explicitly.
	if cfg.RateLimitBurst != 30 {
		t.Fatalf("rateLimitBurst=%d, want 30", cfg.RateLimitBurst)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarListenAddr: "127.0.0.1:9000",
		envVarRoomTTL:    "90s",
	}), []string{"-listen", ":7000", "-room-ttl", "45s"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("listenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.RoomTTL != 45*time.Second {
		t.Fatalf("roomTTL=%v, want flag value", cfg.RoomTTL)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{"bad mode", nil, []string{"-mode", "staging"}, "invalid mode"},
		{"bad log format", nil, []string{"-log-format", "xml"}, "invalid log format"},
		{"bad log level", nil, []string{"-log-level", "verbose"}, "invalid log level"},
		{"bad ttl", map[string]string{envVarRoomTTL: "soon"}, nil, envVarRoomTTL},
		{"zero ttl", map[string]string{envVarRoomTTL: "0s"}, nil, "must be positive"},
		{"relative base url", map[string]string{envVarPublicBaseURL: "/join"}, nil, "absolute URL"},
		{"bad body bytes", map[string]string{envVarMaxBodyBytes: "-1"}, nil, "must be positive"},
		{"negative rate", map[string]string{envVarRateLimitPerMinute: "-5"}, nil, "must not be negative"},
		{"positional args", nil, []string{"extra"}, "unexpected arguments"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
