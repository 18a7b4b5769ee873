package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		LogLevel      string `toml:"log_level" yaml:"log_level"`
		StatsEverySec int    `toml:"stats_every_sec" yaml:"stats_every_sec"`
		MetricsAddr   string `toml:"metrics_addr" yaml:"metrics_addr"` // e.g. :9102, empty disables
	} `toml:"app" yaml:"app"`

	Feed struct {
		BufferSize           int     `toml:"buffer_size" yaml:"buffer_size"`
		ReconnectIntervalMs  *int    `toml:"reconnect_interval_ms" yaml:"reconnect_interval_ms"`
		MaxReconnectAttempts *int    `toml:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
		StopTimeoutMs        int     `toml:"stop_timeout_ms" yaml:"stop_timeout_ms"`
		AutoReconnect        bool    `toml:"auto_reconnect" yaml:"auto_reconnect"`
		Instruments          []int64 `toml:"instruments" yaml:"instruments"`
	} `toml:"feed" yaml:"feed"`

	Transport struct {
		WsURL              string `toml:"ws_url" yaml:"ws_url"` // e.g. wss://feed.example.com/ws?api_key=${FEED_API_KEY}
		Mode               string `toml:"mode" yaml:"mode"`     // ltp / quote / full
		HandshakeTimeoutMs int    `toml:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
		WriteTimeoutMs     int    `toml:"write_timeout_ms" yaml:"write_timeout_ms"`
		PingIntervalMs     int    `toml:"ping_interval_ms" yaml:"ping_interval_ms"`
		ReadTimeoutMs      int    `toml:"read_timeout_ms" yaml:"read_timeout_ms"`
	} `toml:"transport" yaml:"transport"`

	Storage struct {
		QueueSize int `toml:"queue_size" yaml:"queue_size"`

		SQLite struct {
			Enabled bool   `toml:"enabled" yaml:"enabled"`
			Path    string `toml:"path" yaml:"path"`
		} `toml:"sqlite" yaml:"sqlite"`

		Redis struct {
			Enabled      bool   `toml:"enabled" yaml:"enabled"`
			Addr         string `toml:"addr" yaml:"addr"`
			Password     string `toml:"password" yaml:"password"`
			DB           int    `toml:"db" yaml:"db"`
			Prefix       string `toml:"prefix" yaml:"prefix"`
			TTLSeconds   int    `toml:"ttl_seconds" yaml:"ttl_seconds"`
			StreamMaxLen int64  `toml:"stream_max_len" yaml:"stream_max_len"`
		} `toml:"redis" yaml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled" yaml:"enabled"`
			DSN     string `toml:"dsn" yaml:"dsn"`
		} `toml:"postgres" yaml:"postgres"`
	} `toml:"storage" yaml:"storage"`

	NATS struct {
		Enabled       bool   `toml:"enabled" yaml:"enabled"`
		URL           string `toml:"url" yaml:"url"`
		SubjectPrefix string `toml:"subject_prefix" yaml:"subject_prefix"`
	} `toml:"nats" yaml:"nats"`
}

// Load 读取配置文件：.yaml/.yml 走 yaml，其余按 toml 解析；解析前展开 ${VAR}
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(os.ExpandEnv(string(data)), filepath.Ext(path))
}

// Parse decodes already-expanded config text. ext selects the format (".yaml", ".yml" or anything else for TOML).
func Parse(text, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	default:
		if _, err := toml.Decode(text, &cfg); err != nil {
			return nil, fmt.Errorf("parse config toml: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.StatsEverySec <= 0 {
		cfg.App.StatsEverySec = 60
	}
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}

	if cfg.Feed.BufferSize <= 0 {
		cfg.Feed.BufferSize = 1000
	}
	if cfg.Feed.ReconnectIntervalMs == nil {
		v := 10000
		cfg.Feed.ReconnectIntervalMs = &v
	}
	if cfg.Feed.MaxReconnectAttempts == nil {
		v := 5
		cfg.Feed.MaxReconnectAttempts = &v
	}
	if cfg.Feed.StopTimeoutMs <= 0 {
		cfg.Feed.StopTimeoutMs = 5000
	}

	if cfg.Transport.HandshakeTimeoutMs <= 0 {
		cfg.Transport.HandshakeTimeoutMs = 10000
	}
	if cfg.Transport.WriteTimeoutMs <= 0 {
		cfg.Transport.WriteTimeoutMs = 5000
	}
	if cfg.Transport.PingIntervalMs <= 0 {
		cfg.Transport.PingIntervalMs = 25000
	}
	if cfg.Transport.ReadTimeoutMs <= 0 {
		cfg.Transport.ReadTimeoutMs = 60000
	}

	if cfg.Storage.QueueSize <= 0 {
		cfg.Storage.QueueSize = 4096
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "mdfeed"
	}
	if cfg.Storage.Redis.StreamMaxLen <= 0 {
		cfg.Storage.Redis.StreamMaxLen = 10000
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "mdfeed"
	}
}

func validate(cfg *Config) error {
	if *cfg.Feed.ReconnectIntervalMs < 0 {
		return errors.New("feed.reconnect_interval_ms must be >= 0")
	}
	if *cfg.Feed.MaxReconnectAttempts < 0 {
		return errors.New("feed.max_reconnect_attempts must be >= 0")
	}

	ids, err := normalizeInstruments(cfg.Feed.Instruments)
	if err != nil {
		return err
	}
	cfg.Feed.Instruments = ids

	raw := strings.TrimSpace(cfg.Transport.WsURL)
	if raw == "" {
		return errors.New("transport.ws_url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("transport.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport.ws_url: unsupported scheme %q", u.Scheme)
	}
	cfg.Transport.WsURL = raw
	cfg.Transport.Mode = strings.ToLower(strings.TrimSpace(cfg.Transport.Mode))

	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		return errors.New("storage.sqlite.path empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.NATS.Enabled && strings.TrimSpace(cfg.NATS.URL) == "" {
		return errors.New("nats.url empty but enabled")
	}
	return nil
}

// normalizeInstruments 去重并保持顺序；非正数视为配置错误
func normalizeInstruments(in []int64) ([]int64, error) {
	out := make([]int64, 0, len(in))
	seen := map[int64]struct{}{}
	for _, id := range in {
		if id <= 0 {
			return nil, fmt.Errorf("feed.instruments: invalid instrument id %d", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) ReconnectInterval() time.Duration { return ms(*c.Feed.ReconnectIntervalMs) }
func (c *Config) StopTimeout() time.Duration       { return ms(c.Feed.StopTimeoutMs) }
func (c *Config) HandshakeTimeout() time.Duration  { return ms(c.Transport.HandshakeTimeoutMs) }
func (c *Config) WriteTimeout() time.Duration      { return ms(c.Transport.WriteTimeoutMs) }
func (c *Config) PingInterval() time.Duration      { return ms(c.Transport.PingIntervalMs) }
func (c *Config) ReadTimeout() time.Duration       { return ms(c.Transport.ReadTimeoutMs) }
func (c *Config) StatsEvery() time.Duration        { return time.Duration(c.App.StatsEverySec) * time.Second }
