package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const minimalTOML = `
[transport]
ws_url = "wss://feed.example.com/ws"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(minimalTOML, ".toml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Feed.BufferSize != 1000 {
		t.Errorf("buffer_size = %d, want 1000", cfg.Feed.BufferSize)
	}
	if cfg.ReconnectInterval() != 10*time.Second {
		t.Errorf("reconnect interval = %v, want 10s", cfg.ReconnectInterval())
	}
	if *cfg.Feed.MaxReconnectAttempts != 5 {
		t.Errorf("max_reconnect_attempts = %d, want 5", *cfg.Feed.MaxReconnectAttempts)
	}
	if cfg.StopTimeout() != 5*time.Second || cfg.PingInterval() != 25*time.Second {
		t.Errorf("unexpected timeouts: stop=%v ping=%v", cfg.StopTimeout(), cfg.PingInterval())
	}
	if cfg.StatsEvery() != time.Minute || cfg.App.LogLevel != "info" {
		t.Errorf("unexpected app section: %+v", cfg.App)
	}
	if cfg.Storage.QueueSize != 4096 || cfg.Storage.Redis.Prefix != "mdfeed" || cfg.NATS.SubjectPrefix != "mdfeed" {
		t.Errorf("unexpected storage/nats defaults: %+v %+v", cfg.Storage, cfg.NATS)
	}
}

func TestParseExplicitZeroKept(t *testing.T) {
	cfg, err := Parse(`
[feed]
reconnect_interval_ms = 0
max_reconnect_attempts = 0

[transport]
ws_url = "ws://127.0.0.1:9000"
`, ".toml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.ReconnectInterval() != 0 {
		t.Errorf("reconnect interval = %v, want 0", cfg.ReconnectInterval())
	}
	if *cfg.Feed.MaxReconnectAttempts != 0 {
		t.Errorf("max_reconnect_attempts = %d, want 0", *cfg.Feed.MaxReconnectAttempts)
	}
}

func TestParseNormalizesInstruments(t *testing.T) {
	cfg, err := Parse(`
[feed]
instruments = [256265, 101, 256265, 738561]

[transport]
ws_url = "wss://feed.example.com/ws"
mode = " FULL "
`, ".toml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if want := []int64{256265, 101, 738561}; !reflect.DeepEqual(cfg.Feed.Instruments, want) {
		t.Errorf("instruments = %v, want %v", cfg.Feed.Instruments, want)
	}
	if cfg.Transport.Mode != "full" {
		t.Errorf("mode = %q, want full", cfg.Transport.Mode)
	}
}

func TestParseYAML(t *testing.T) {
	cfg, err := Parse(`
app:
  log_level: debug
  metrics_addr: ":9102"
feed:
  buffer_size: 50
  auto_reconnect: true
  instruments: [1, 2]
transport:
  ws_url: wss://feed.example.com/ws
storage:
  redis:
    enabled: true
    addr: 127.0.0.1:6379
`, ".yaml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.App.LogLevel != "debug" || cfg.App.MetricsAddr != ":9102" {
		t.Errorf("unexpected app: %+v", cfg.App)
	}
	if cfg.Feed.BufferSize != 50 || !cfg.Feed.AutoReconnect {
		t.Errorf("unexpected feed: %+v", cfg.Feed)
	}
	if !cfg.Storage.Redis.Enabled || cfg.Storage.Redis.StreamMaxLen != 10000 {
		t.Errorf("unexpected redis: %+v", cfg.Storage.Redis)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name, text, wantErr string
	}{
		{"missing url", `[feed]
buffer_size = 10`, "transport.ws_url"},
		{"http scheme", `[transport]
ws_url = "http://feed.example.com"`, "unsupported scheme"},
		{"negative instrument", `[feed]
instruments = [-1]
[transport]
ws_url = "wss://x"`, "feed.instruments"},
		{"negative attempts", `[feed]
max_reconnect_attempts = -2
[transport]
ws_url = "wss://x"`, "max_reconnect_attempts"},
		{"sqlite without path", `[transport]
ws_url = "wss://x"
[storage.sqlite]
enabled = true`, "storage.sqlite.path"},
		{"nats without url", `[transport]
ws_url = "wss://x"
[nats]
enabled = true`, "nats.url"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text, ".toml")
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MDFEED_TEST_KEY", "secret123")

	path := filepath.Join(t.TempDir(), "mdfeed.toml")
	body := `
[transport]
ws_url = "wss://feed.example.com/ws?api_key=${MDFEED_TEST_KEY}"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.HasSuffix(cfg.Transport.WsURL, "api_key=secret123") {
		t.Errorf("ws_url = %q, env not expanded", cfg.Transport.WsURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
