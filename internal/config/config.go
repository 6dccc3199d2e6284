package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DevBaseURL is the local backend used when running with --dev.
const DevBaseURL = "http://localhost:8000"

// ErrMissingBaseURL is returned when no backend address is configured
// outside development mode.
var ErrMissingBaseURL = errors.New("base_url is not configured (set DATACHAT_BASE_URL, run `datachat config set base_url <url>`, or pass --dev)")

// Global configuration structure.
type Global struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Dev     bool   `mapstructure:"dev" yaml:"dev,omitempty"`

	// HTTP configuration. Zero leaves requests unbounded.
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Developer log and telemetry
	LogFile          string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	LogLevel         string `mapstructure:"log_level" yaml:"log_level"`
	TelemetryEnabled bool   `mapstructure:"telemetry_enabled" yaml:"telemetry_enabled"`
	TelemetryDir     string `mapstructure:"telemetry_dir" yaml:"telemetry_dir,omitempty"`

	// Where chart PNGs are written from the chat screen; empty disables.
	ChartDir string `mapstructure:"chart_dir" yaml:"chart_dir"`
}

// Dir returns ~/.datachat.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datachat"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datachat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	c, dir, err := read(cfgFile, true)
	if err != nil {
		return nil, err
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(dir, "logs", "datachat.log")
	}
	if c.TelemetryDir == "" {
		c.TelemetryDir = filepath.Join(dir, "telemetry")
	}
	return c, nil
}

// LoadFile reads only what is stored in the config file. Use it before
// Save so environment values and derived paths are not persisted.
func LoadFile(cfgFile string) (*Global, error) {
	c, _, err := read(cfgFile, false)
	return c, err
}

func read(cfgFile string, env bool) (*Global, string, error) {
	v := viper.New()
	if env {
		v.SetEnvPrefix("DATACHAT")
		v.AutomaticEnv()
	}

	v.SetDefault("base_url", "")
	v.SetDefault("dev", false)
	v.SetDefault("http_timeout_sec", 0)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("telemetry_enabled", false)
	v.SetDefault("telemetry_dir", "")
	v.SetDefault("chart_dir", "")

	dir, err := Dir()
	if err != nil {
		return nil, "", err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, "", fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, dir, nil
}

// ResolveBaseURL returns the backend address. Without one, development mode
// falls back to DevBaseURL and everything else fails fast.
func (c *Global) ResolveBaseURL(dev bool) (string, error) {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		if dev || c.Dev {
			return DevBaseURL, nil
		}
		return "", ErrMissingBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base_url %q: must be an absolute http(s) URL", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}
