package cmd

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/datachat-cli/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set DataChat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("base_url: %s\n", maskURL(cfg.BaseURL))
		if cfg.Dev || devMode {
			fmt.Printf("dev: true (fallback %s)\n", cfgpkg.DevBaseURL)
		}
		if cfg.HTTPTimeoutSec > 0 {
			fmt.Printf("http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		} else {
			fmt.Println("http_timeout_sec: 0 (no timeout)")
		}
		fmt.Printf("log_file: %s\n", cfg.LogFile)
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		fmt.Printf("telemetry_enabled: %t\n", cfg.TelemetryEnabled)
		if cfg.TelemetryEnabled {
			fmt.Printf("telemetry_dir: %s\n", cfg.TelemetryDir)
		}
		if cfg.ChartDir != "" {
			fmt.Printf("chart_dir: %s\n", cfg.ChartDir)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		// Start from the file alone; flags and env only apply to this run.
		stored, err := cfgpkg.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		if err := applySetting(stored, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(stored, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func applySetting(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "base_url":
		probe := *c
		probe.BaseURL = val
		if _, err := probe.ResolveBaseURL(false); err != nil {
			return err
		}
		c.BaseURL = strings.TrimRight(strings.TrimSpace(val), "/")
	case "dev":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for dev: %v", val)
		}
		c.Dev = b
	case "http_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for http_timeout_sec: %v", val)
		}
		c.HTTPTimeoutSec = i
	case "log_file":
		c.LogFile = val
	case "log_level":
		var l slog.Level
		if err := l.UnmarshalText([]byte(val)); err != nil {
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
		c.LogLevel = strings.ToLower(val)
	case "telemetry_enabled":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for telemetry_enabled: %v", val)
		}
		c.TelemetryEnabled = b
	case "telemetry_dir":
		c.TelemetryDir = val
	case "chart_dir":
		c.ChartDir = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// maskURL hides credentials embedded in a URL.
func maskURL(raw string) string {
	if raw == "" {
		return "(not set)"
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	name := u.User.Username()
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(mask(name), "******")
	} else {
		u.User = url.User(mask(name))
	}
	return u.String()
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
