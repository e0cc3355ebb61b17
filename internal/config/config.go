package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-proctor/internal/engine"
	"github.com/miradorstack/mirador-proctor/internal/report"
	"github.com/miradorstack/mirador-proctor/internal/utils"
)

// Config captures the settings required to boot the proctoring engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Debounce DebounceConfig `yaml:"debounce"`
	Objects  ObjectsConfig  `yaml:"objects"`
	Scoring  report.Scoring `yaml:"scoring"`
	Report   ReportConfig   `yaml:"report"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	// MaxMessageBytes caps gRPC messages in both directions. Exported PDFs
	// are the largest responses.
	MaxMessageBytes int `yaml:"maxMessageBytes"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DebounceConfig holds dwell times and the on-screen gaze rectangle.
type DebounceConfig struct {
	NoFaceDwell   time.Duration `yaml:"noFaceDwell"`
	LookAwayDwell time.Duration `yaml:"lookAwayDwell"`
	GazeMin       float64       `yaml:"gazeMin"`
	GazeMax       float64       `yaml:"gazeMax"`
}

// ObjectsConfig controls which object predictions become events.
type ObjectsConfig struct {
	MinConfidence float64       `yaml:"minConfidence"`
	Labels        []string      `yaml:"labels"`
	PollInterval  time.Duration `yaml:"pollInterval"`
}

// ReportConfig controls how event times are rendered.
type ReportConfig struct {
	TimeLayout string `yaml:"timeLayout"`
	Timezone   string `yaml:"timezone"`
}

// ArchiveConfig points at the SQLite archive. An empty path disables it.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls caching of rendered reports.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_PROCTOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	policy := engine.DefaultPolicy()
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			MaxMessageBytes: 16 << 20,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Debounce: DebounceConfig{
			NoFaceDwell:   policy.NoFaceDwell,
			LookAwayDwell: policy.LookAwayDwell,
			GazeMin:       policy.GazeMin,
			GazeMax:       policy.GazeMax,
		},
		Objects: ObjectsConfig{
			MinConfidence: engine.DefaultMinConfidence,
			Labels:        append([]string(nil), engine.DefaultWatchLabels...),
			PollInterval:  time.Second,
		},
		Scoring: report.DefaultScoring(),
		Report:  ReportConfig{TimeLayout: "15:04:05", Timezone: "Local"},
		Cache:   CacheConfig{Enabled: true, TTL: 5 * time.Minute},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.MaxMessageBytes < 0 {
		return errors.New("server.maxMessageBytes must not be negative")
	}
	if c.Debounce.NoFaceDwell < 0 || c.Debounce.LookAwayDwell < 0 {
		return errors.New("debounce dwell times must not be negative")
	}
	if c.Debounce.GazeMin >= c.Debounce.GazeMax {
		return fmt.Errorf("gaze rectangle (%.2f, %.2f) is empty", c.Debounce.GazeMin, c.Debounce.GazeMax)
	}
	if c.Objects.MinConfidence < 0 || c.Objects.MinConfidence > 1 {
		return fmt.Errorf("objects.minConfidence %.2f outside [0,1]", c.Objects.MinConfidence)
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if _, err := utils.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	return nil
}

// Policy converts the debounce section into an engine policy.
func (c *Config) Policy() engine.Policy {
	return engine.Policy{
		NoFaceDwell:   c.Debounce.NoFaceDwell,
		LookAwayDwell: c.Debounce.LookAwayDwell,
		GazeMin:       c.Debounce.GazeMin,
		GazeMax:       c.Debounce.GazeMax,
	}
}

// ObjectFilter builds the object watch-list filter.
func (c *Config) ObjectFilter() *engine.ObjectFilter {
	return engine.NewObjectFilter(c.Objects.MinConfidence, c.Objects.Labels)
}

// ReportOptions builds the report projection options.
func (c *Config) ReportOptions() (report.Options, error) {
	loc, err := utils.LoadLocation(c.Report.Timezone)
	if err != nil {
		return report.Options{}, err
	}
	return report.Options{Scoring: c.Scoring, TimeLayout: c.Report.TimeLayout, Location: loc}, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_PROCTOR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_PROCTOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	envDuration("MIRADOR_PROCTOR_GRACEFUL_TIMEOUT", &cfg.Server.GracefulTimeout)
	if v := os.Getenv("MIRADOR_PROCTOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_PROCTOR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	envDuration("MIRADOR_PROCTOR_NO_FACE_DWELL", &cfg.Debounce.NoFaceDwell)
	envDuration("MIRADOR_PROCTOR_LOOK_AWAY_DWELL", &cfg.Debounce.LookAwayDwell)
	envFloat("MIRADOR_PROCTOR_GAZE_MIN", &cfg.Debounce.GazeMin)
	envFloat("MIRADOR_PROCTOR_GAZE_MAX", &cfg.Debounce.GazeMax)
	envFloat("MIRADOR_PROCTOR_OBJECT_MIN_CONFIDENCE", &cfg.Objects.MinConfidence)
	if v := os.Getenv("MIRADOR_PROCTOR_OBJECT_LABELS"); v != "" {
		labels := make([]string, 0)
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		cfg.Objects.Labels = labels
	}
	envDuration("MIRADOR_PROCTOR_OBJECT_POLL_INTERVAL", &cfg.Objects.PollInterval)
	if v := os.Getenv("MIRADOR_PROCTOR_REPORT_TIMEZONE"); v != "" {
		cfg.Report.Timezone = v
	}
	if v := os.Getenv("MIRADOR_PROCTOR_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("MIRADOR_PROCTOR_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	envDuration("MIRADOR_PROCTOR_CACHE_TTL", &cfg.Cache.TTL)
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
