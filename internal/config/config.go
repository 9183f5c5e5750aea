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
	Addr      string          `yaml:"addr"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
	Print     PrintConfig     `yaml:"print"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Agent     AgentConfig     `yaml:"agent"`
	Stream    StreamConfig    `yaml:"stream"`
}

type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

type EventsConfig struct {
	Topic         string        `yaml:"topic"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Retention     time.Duration `yaml:"retention"`
	MaxEntries    int           `yaml:"max_entries"`
	MaxEventBytes int           `yaml:"max_event_bytes"`
}

type PrintConfig struct {
	MaxCopies int `yaml:"max_copies"`
}

// AllocatorConfig holds the seed handed out when a sequential field has no
// numeric predecessor.
type AllocatorConfig struct {
	BarcodeFloor int64 `yaml:"barcode_floor"`
	PhotoIDFloor int64 `yaml:"photo_id_floor"`
	SKUFloor     int64 `yaml:"sku_floor"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type AgentConfig struct {
	ServerURL       string        `yaml:"server_url"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ClaimsPerSecond float64       `yaml:"claims_per_second"`
	SpoolDir        string        `yaml:"spool_dir"`
	CodePage        string        `yaml:"code_page"`
}

type StreamConfig struct {
	URL              string        `yaml:"url"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
}

func Default() Config {
	dataDir := "local-data"
	return Config{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: dataDir,
		},
		Events: EventsConfig{
			Topic:         "stockroom:events",
			PollInterval:  time.Second,
			Retention:     5 * time.Second,
			MaxEntries:    1000,
			MaxEventBytes: 64 << 10,
		},
		Print: PrintConfig{MaxCopies: 100},
		Allocator: AllocatorConfig{
			BarcodeFloor: 1000001,
			PhotoIDFloor: 1,
			SKUFloor:     10001,
		},
		Metrics: MetricsConfig{Enabled: true},
		Agent: AgentConfig{
			ServerURL:       "http://localhost:8080",
			PollInterval:    2 * time.Second,
			ClaimsPerSecond: 5,
			SpoolDir:        filepath.Join(dataDir, "spool"),
			CodePage:        "cp437",
		},
		Stream: StreamConfig{
			URL:              "http://localhost:8080/events-stream",
			ReconnectBackoff: 3 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// at path, then STOCKROOM_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if cfg.Store.DSN == "" && cfg.Store.Driver == "sqlite" {
		cfg.Store.DSN = filepath.Join(cfg.Store.DataDir, "stockroom.db")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Events.PollInterval <= 0:
		return fmt.Errorf("events.poll_interval must be positive")
	case c.Print.MaxCopies < 1:
		return fmt.Errorf("print.max_copies must be at least 1")
	case c.Events.Topic == "":
		return fmt.Errorf("events.topic is required")
	case c.Store.Driver != "sqlite" && c.Store.Driver != "postgres":
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	case c.Store.Driver == "postgres" && c.Store.DSN == "":
		return fmt.Errorf("store.dsn is required for postgres")
	}
	return nil
}

func applyEnv(c *Config) {
	c.Addr = getenv("STOCKROOM_ADDR", c.Addr)
	c.LogLevel = getenv("STOCKROOM_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("STOCKROOM_LOG_FORMAT", c.LogFormat)

	c.Store.Driver = getenv("STOCKROOM_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getenv("STOCKROOM_STORE_DSN", c.Store.DSN)
	c.Store.DataDir = getenv("STOCKROOM_DATA_DIR", c.Store.DataDir)

	c.Events.Topic = getenv("STOCKROOM_EVENTS_TOPIC", c.Events.Topic)
	c.Events.PollInterval = getenvDuration("STOCKROOM_EVENTS_POLL_INTERVAL", c.Events.PollInterval)
	c.Events.Retention = getenvDuration("STOCKROOM_EVENTS_RETENTION", c.Events.Retention)
	c.Events.MaxEntries = getenvInt("STOCKROOM_EVENTS_MAX_ENTRIES", c.Events.MaxEntries)
	c.Events.MaxEventBytes = getenvInt("STOCKROOM_EVENTS_MAX_BYTES", c.Events.MaxEventBytes)

	c.Print.MaxCopies = getenvInt("STOCKROOM_PRINT_MAX_COPIES", c.Print.MaxCopies)

	c.Allocator.BarcodeFloor = getenvInt64("STOCKROOM_BARCODE_FLOOR", c.Allocator.BarcodeFloor)
	c.Allocator.PhotoIDFloor = getenvInt64("STOCKROOM_PHOTO_ID_FLOOR", c.Allocator.PhotoIDFloor)
	c.Allocator.SKUFloor = getenvInt64("STOCKROOM_SKU_FLOOR", c.Allocator.SKUFloor)

	c.Metrics.Enabled = getenvBool("STOCKROOM_METRICS_ENABLED", c.Metrics.Enabled)

	c.Agent.ServerURL = getenv("STOCKROOM_AGENT_SERVER_URL", c.Agent.ServerURL)
	c.Agent.PollInterval = getenvDuration("STOCKROOM_AGENT_POLL_INTERVAL", c.Agent.PollInterval)
	c.Agent.ClaimsPerSecond = getenvFloat("STOCKROOM_AGENT_CLAIMS_PER_SECOND", c.Agent.ClaimsPerSecond)
	c.Agent.SpoolDir = getenv("STOCKROOM_AGENT_SPOOL_DIR", c.Agent.SpoolDir)
	c.Agent.CodePage = getenv("STOCKROOM_AGENT_CODE_PAGE", c.Agent.CodePage)

	c.Stream.URL = getenv("STOCKROOM_STREAM_URL", c.Stream.URL)
	c.Stream.ReconnectBackoff = getenvDuration("STOCKROOM_STREAM_RECONNECT_BACKOFF", c.Stream.ReconnectBackoff)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64(key string, fallback int64) int64 {
	n, err := strconv.ParseInt(getenv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

// getenvDuration accepts Go duration strings ("1500ms") or bare milliseconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
