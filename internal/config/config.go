package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/logging"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Logging LogConfig     `toml:"logging"`
	Sandbox SandboxConfig `toml:"sandbox"`
	Loader  LoaderConfig  `toml:"loader"`
	WBI     WBIConfig     `toml:"wbi"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// SandboxConfig holds script runtime configuration.
type SandboxConfig struct {
	Timeout       Duration `envconfig:"SANDBOX_TIMEOUT" default:"30s" toml:"timeout"`
	EnableConsole bool     `envconfig:"SANDBOX_CONSOLE" default:"true" toml:"console"`
	RunAt         string   `envconfig:"SANDBOX_RUN_AT" default:"document-end" toml:"run_at"`
	ConsoleRate   float64  `envconfig:"SANDBOX_CONSOLE_RATE" default:"0" toml:"console_rate"` // Entries per second, 0 is unlimited
	ConsoleBurst  int      `envconfig:"SANDBOX_CONSOLE_BURST" default:"100" toml:"console_burst"`
}

// LoaderConfig holds page lifecycle replay configuration.
type LoaderConfig struct {
	StepDelay Duration `envconfig:"LOADER_STEP_DELAY" default:"0s" toml:"step_delay"`
}

// WBIConfig holds signing keys.
type WBIConfig struct {
	ImgKey string `envconfig:"WBI_IMG_KEY" toml:"img_key"`
	SubKey string `envconfig:"WBI_SUB_KEY" toml:"sub_key"`
}

// Duration is a time.Duration written as text, e.g. "30s"
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads a TOML file and applies environment variables on top.
// Variables that are set win over the file; unset ones keep its values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Sandbox: SandboxConfig{
			Timeout:       Duration(30 * time.Second),
			EnableConsole: true,
			RunAt:         "document-end",
			ConsoleBurst:  100,
		},
		Loader: LoaderConfig{
			StepDelay: 0,
		},
	}
}

// LoggerConfig converts the logging section for the logging package.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Development = c.Logging.Development
	return cfg
}

var errMissingKeys = errors.New("wbi keys not configured: set WBI_IMG_KEY and WBI_SUB_KEY")

// RequireWBIKeys checks that both signing keys are present.
func (c *Config) RequireWBIKeys() error {
	if c.WBI.ImgKey == "" || c.WBI.SubKey == "" {
		return errMissingKeys
	}
	return nil
}

// applyEnv overlays only the variables that are present, so defaults
// from struct tags do not clobber file values.
func applyEnv(cfg *Config) error {
	var env Config
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overlay := []struct {
		key   string
		apply func()
	}{
		{"LOG_LEVEL", func() { cfg.Logging.Level = env.Logging.Level }},
		{"LOG_DEV", func() { cfg.Logging.Development = env.Logging.Development }},
		{"SANDBOX_TIMEOUT", func() { cfg.Sandbox.Timeout = env.Sandbox.Timeout }},
		{"SANDBOX_CONSOLE", func() { cfg.Sandbox.EnableConsole = env.Sandbox.EnableConsole }},
		{"SANDBOX_RUN_AT", func() { cfg.Sandbox.RunAt = env.Sandbox.RunAt }},
		{"SANDBOX_CONSOLE_RATE", func() { cfg.Sandbox.ConsoleRate = env.Sandbox.ConsoleRate }},
		{"SANDBOX_CONSOLE_BURST", func() { cfg.Sandbox.ConsoleBurst = env.Sandbox.ConsoleBurst }},
		{"LOADER_STEP_DELAY", func() { cfg.Loader.StepDelay = env.Loader.StepDelay }},
		{"WBI_IMG_KEY", func() { cfg.WBI.ImgKey = env.WBI.ImgKey }},
		{"WBI_SUB_KEY", func() { cfg.WBI.SubKey = env.WBI.SubKey }},
	}
	for _, o := range overlay {
		if _, ok := os.LookupEnv(o.key); ok {
			o.apply()
		}
	}
	return nil
}
