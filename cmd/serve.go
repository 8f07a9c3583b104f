package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcpgate/internal/app"
	"mcpgate/internal/config"
	"mcpgate/pkg/logging"
)

const configReloadDebounce = 500 * time.Millisecond

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the mcpgate HTTP API",
		Long: `Starts the HTTP API and the OAuth callback endpoint.

Configuration is read from config.yaml and an optional .env file in the
configuration directory; MCPGATE_* environment variables override both.
Changes to the log level in config.yaml are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, GetVersion())
	if err != nil {
		return fmt.Errorf("failed to initialize mcpgate: %w", err)
	}
	defer application.Close()

	startConfigWatcher(ctx)

	return application.Run(ctx)
}

// startConfigWatcher applies log level changes from config.yaml. Other
// settings need a restart.
func startConfigWatcher(ctx context.Context) {
	dir, err := resolveConfigDir()
	if err != nil {
		logging.Warn("Config", "Not watching configuration: %v", err)
		return
	}
	w := config.NewWatcher(dir, configReloadDebounce, func(cfg config.Config) {
		if logLevel != "" {
			return
		}
		level, _ := logging.ParseLevel(cfg.Logging.Level)
		logging.SetLevel(level)
		logging.Info("Config", "Log level set to %s", level)
	})
	if err := w.Start(ctx); err != nil {
		logging.Warn("Config", "Not watching %s: %v", dir, err)
		return
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
}
