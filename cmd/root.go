package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcpgate/internal/app"
	"mcpgate/internal/config"
	"mcpgate/pkg/logging"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
	ExitCodeAuthFailed   = 3
)

var (
	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "Authorization and catalog gateway for MCP servers",
	Long: `mcpgate keeps track of the MCP servers each user has registered, runs their
OAuth authorization flows, refreshes tokens and exposes the tools every
server offers under collision-free names.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpgate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}
	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

// loadConfig reads the configuration and initializes logging. The
// --log-level flag wins over the file and environment.
func loadConfig() (config.Config, error) {
	dir, err := resolveConfigDir()
	if err != nil {
		return config.Config{}, err
	}

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		if _, ok := logging.ParseLevel(logLevel); !ok {
			return config.Config{}, fmt.Errorf("invalid --log-level %q", logLevel)
		}
		cfg.Logging.Level = logLevel
	}
	app.InitLogging(cfg.Logging, os.Stderr)
	logging.Debug("Config", "Loaded configuration from %s", dir)
	return cfg, nil
}

func resolveConfigDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	return config.DefaultConfigPath()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default ~/.config/mcpgate)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newHarnessCmd())
}
