// Command typescope inspects the typography of a web page.
//
// Usage:
//
//	typescope detect --file page.html        # report the style groups of a local file
//	typescope detect --url https://example.com
//	typescope serve https://example.com      # drive the page over HTTP and MCP
//	typescope audit --op highlight           # list recorded commands
//	typescope call --addr host:9444 typescope_detect
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/typescope/internal/config"
)

var (
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "typescope",
		Short:             "Inspect the typography of a web page",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to typescope.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before TYPESCOPE_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newCallCmd())
	return rootCmd
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configPath, envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	logger = newLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), d)
}
