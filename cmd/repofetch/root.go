package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"repofetch/internal/config"
	"repofetch/internal/logging"
	"repofetch/internal/version"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "repofetch",
	Short: "Batch file retrieval for remote repositories",
	Long: `repofetch retrieves batches of files from remote repositories by exact
path, glob pattern, or line range, without a local checkout.

Content comes either per-file over the hosting provider's API or from a
shallow clone kept in a local cache; auto mode prefers the clone and
falls back to the API when cloning fails.

The API token is read from the configuration file, or from the
REPOFETCH_TOKEN / GITHUB_TOKEN environment variables. A bare repository
name is completed with the configured default organization, which
REPOFETCH_DEFAULT_ORG overrides.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}

func init() {
	rootCmd.SetVersionTemplate("repofetch version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Path to config file (default: "+filepath.Join(config.DefaultDir(), "config.json")+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "",
		"Log format: human or json")
	rootCmd.AddCommand(versionCmd)
}

// configPath is where the init command writes: the --config flag when
// set, the default directory otherwise.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return filepath.Join(config.DefaultDir(), "config.json")
}

// loadConfig reads the configuration honoring the --config flag and the
// REPOFETCH_DEFAULT_ORG environment override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if org := os.Getenv("REPOFETCH_DEFAULT_ORG"); org != "" {
		cfg.Remote.DefaultOrg = org
	}
	return cfg, nil
}

// buildLogger builds the process logger. Flags win over the config
// file. Logs go to stderr; stdout carries command output.
func buildLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	format := cfg.Logging.Format
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	return logging.NewLogger(logging.Config{
		Format: logging.ParseFormat(format),
		Level:  logging.ParseLevel(level),
		Output: os.Stderr,
	})
}
