package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/penwyp/go-chat-recap/internal/analyzer"
	"github.com/penwyp/go-chat-recap/internal/data/schema"
	"github.com/penwyp/go-chat-recap/internal/data/timestamp"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECAP_"

// Server engines.
const (
	EngineNetHTTP  = "nethttp"
	EngineFastHTTP = "fasthttp"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds http settings.
type ServerConfig struct {
	Address         string          `yaml:"address"`
	Port            int             `yaml:"port"`
	Engine          string          `yaml:"engine"`
	MaxBodySize     SizeBytes       `yaml:"max_body_size"`
	ReadTimeout     Duration        `yaml:"read_timeout"`
	WriteTimeout    Duration        `yaml:"write_timeout"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds the per-client token bucket. Zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// PipelineConfig tunes the analysis.
type PipelineConfig struct {
	Dialect        string `yaml:"dialect"`
	OnBadTimestamp string `yaml:"on_bad_timestamp"`
	Heatmap        bool   `yaml:"heatmap"`
	// AvgLengthTopN of zero picks the dialect default.
	AvgLengthTopN int    `yaml:"avg_length_top_n"`
	TopSenders    int    `yaml:"top_senders"`
	Timezone      string `yaml:"timezone"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// SizeBytes is a byte count read from strings like "10MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

// ParseSize parses a human-friendly size.
func ParseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a time.Duration read from strings like "5s" or plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParseDuration parses a Go duration or a number of seconds.
func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			Engine:          EngineNetHTTP,
			MaxBodySize:     10 * 1000 * 1000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       RateLimitConfig{RPS: 5, Burst: 10},
		},
		Pipeline: PipelineConfig{
			Dialect:        string(schema.DialectLoose),
			OnBadTimestamp: string(timestamp.PolicyDrop),
			Heatmap:        true,
			TopSenders:     5,
			Timezone:       "UTC",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (a missing file is ignored unless required), then .env and RECAP_*
// environment variables.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
			util.LogDebug("Config file not found, using defaults", util.F("path", path))
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load(".env")

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RECAP_* variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	var errs []error
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = i
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	setString("SERVER_ADDRESS", &c.Server.Address)
	setInt("SERVER_PORT", &c.Server.Port)
	setString("SERVER_ENGINE", &c.Server.Engine)
	if v, ok := get("SERVER_MAX_BODY_SIZE"); ok {
		size, err := ParseSize(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSERVER_MAX_BODY_SIZE: %w", EnvPrefix, err))
		} else {
			c.Server.MaxBodySize = size
		}
	}
	if v, ok := get("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err))
		} else {
			c.Server.RateLimit.RPS = f
		}
	}
	setInt("RATE_LIMIT_BURST", &c.Server.RateLimit.Burst)

	setString("DIALECT", &c.Pipeline.Dialect)
	setString("ON_BAD_TIMESTAMP", &c.Pipeline.OnBadTimestamp)
	if v, ok := get("HEATMAP"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHEATMAP: %w", EnvPrefix, err))
		} else {
			c.Pipeline.Heatmap = b
		}
	}
	setInt("AVG_LENGTH_TOP_N", &c.Pipeline.AvgLengthTopN)
	setInt("TOP_SENDERS", &c.Pipeline.TopSenders)
	setString("TIMEZONE", &c.Pipeline.Timezone)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// Validate rejects unknown options and out-of-range values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Engine {
	case EngineNetHTTP, EngineFastHTTP:
	default:
		errs = append(errs, fmt.Errorf("server.engine: unknown engine %q (valid: nethttp, fasthttp)", c.Server.Engine))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, errors.New("server.max_body_size must be positive"))
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit values must not be negative"))
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst == 0 {
		errs = append(errs, errors.New("server.rate_limit.burst must be positive when rps is set"))
	}

	if _, err := schema.ParseDialect(c.Pipeline.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.dialect: %w", err))
	}
	if _, err := timestamp.ParseBadRowPolicy(c.Pipeline.OnBadTimestamp); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.on_bad_timestamp: %w", err))
	}
	if c.Pipeline.AvgLengthTopN < 0 {
		errs = append(errs, fmt.Errorf("pipeline.avg_length_top_n: %d must not be negative", c.Pipeline.AvgLengthTopN))
	}
	if c.Pipeline.TopSenders <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.top_senders: %d must be positive", c.Pipeline.TopSenders))
	}
	if _, err := util.LoadLocation(c.Pipeline.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.timezone: %w", err))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case string(util.FormatText), string(util.FormatJSON):
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ListenAddr joins address and port.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// LoggerConfig converts the logging section for util.InitLogger.
func (l LoggingConfig) LoggerConfig(debug bool) util.LoggerConfig {
	level := l.Level
	if debug {
		level = "debug"
	}
	return util.LoggerConfig{
		Level:  level,
		Format: l.Format,
		File:   l.File,
	}
}

// AnalyzerConfig converts the pipeline section into analyzer options.
func (p PipelineConfig) AnalyzerConfig() (analyzer.Config, error) {
	dialect, err := schema.ParseDialect(p.Dialect)
	if err != nil {
		return analyzer.Config{}, err
	}
	policy, err := timestamp.ParseBadRowPolicy(p.OnBadTimestamp)
	if err != nil {
		return analyzer.Config{}, err
	}
	return analyzer.Config{
		Dialect:        dialect,
		OnBadTimestamp: policy,
		Timezone:       p.Timezone,
		Heatmap:        p.Heatmap,
		AvgLengthTopN:  p.AvgLengthTopN,
		TopSenders:     p.TopSenders,
	}, nil
}
