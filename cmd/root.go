package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	cfgpkg "github.com/KaramelBytes/datachat-cli/internal/config"
	"github.com/KaramelBytes/datachat-cli/internal/flow"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	devMode bool
	// HTTP flags (override config if set)
	flagBaseURL        string
	flagHTTPTimeoutSec int

	// Loaded configuration
	cfg *cfgpkg.Global

	// Backend runtime, set up by requireBackend
	rt *backend
)

// backend bundles what commands that talk to the backend need.
type backend struct {
	client   *api.Client
	logger   *slog.Logger
	recorder *telemetry.Recorder
	closers  []func()
}

func (r *backend) controller(store *session.Store) *flow.Controller {
	return flow.NewController(store, r.client, flow.WithLogger(r.logger), flow.WithRecorder(r.recorder))
}

func (r *backend) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

var rootCmd = &cobra.Command{
	Use:   "datachat",
	Short: "DataChat CLI: upload a spreadsheet and ask questions about it",
	Long: `DataChat uploads a CSV or Excel file to a query service and lets you ask
questions about the data in plain language. Answers come back as text plus
bar, line or pie charts and tables rendered in the terminal.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	cobra.OnFinalize(closeBackend)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.datachat/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode: fall back to "+cfgpkg.DevBaseURL+" when no base URL is configured")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "query service base URL (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds, 0 for none (overrides config)")
}

func closeBackend() {
	if rt != nil {
		rt.close()
		rt = nil
	}
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("base-url") {
		cfg.BaseURL = strings.TrimSpace(flagBaseURL)
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec >= 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if debug {
		cfg.LogLevel = "debug"
	}
}

// requireBackend is the PreRunE of every command that talks to the query
// service. A missing base URL fails here, before any network call.
func requireBackend(cmd *cobra.Command, _ []string) error {
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	baseURL, err := cfg.ResolveBaseURL(devMode)
	if err != nil {
		return err
	}
	r, err := newBackend(cmd.Context(), cfg, baseURL)
	if err != nil {
		return err
	}
	rt = r
	return nil
}

func newBackend(ctx context.Context, c *cfgpkg.Global, baseURL string) (*backend, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &backend{
		client:   api.NewClient(baseURL, time.Duration(c.HTTPTimeoutSec)*time.Second),
		recorder: telemetry.Noop(),
	}
	logger, closer, err := telemetry.InitLogger(c.LogFile, parseLevel(c.LogLevel))
	if err != nil {
		// Logging is a developer aid; commands still work without it.
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		r.closers = append(r.closers, func() { _ = closer.Close() })
	}
	r.logger = logger

	if c.TelemetryEnabled {
		rec, cleanup, err := telemetry.Init(ctx, c.TelemetryDir)
		if err != nil {
			r.logger.Warn("telemetry disabled", "error", err)
		} else {
			r.recorder = rec
			r.closers = append(r.closers, cleanup)
		}
	}
	r.logger.Debug("backend configured", "base_url", baseURL, "http_timeout_sec", c.HTTPTimeoutSec)
	return r, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
