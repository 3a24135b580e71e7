package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repofetch/internal/config"
	"repofetch/internal/errors"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage repofetch configuration",
	Long:  "View and manage the repofetch configuration stored in " + configPath(),
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as JSON, after defaults, the config
file, and environment variables are merged. Secrets are redacted.`,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return errors.Newf(errors.InvalidParameter, "%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return errors.Wrap(errors.Internal, "writing config file", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(redacted(cfg), "", "  ")
	if err != nil {
		return errors.Wrap(errors.Internal, "marshaling config", err)
	}
	fmt.Println(string(out))
	return nil
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Remote.Token != "" {
		out.Remote.Token = "[redacted]"
	}
	out.Webhooks = append([]config.WebhookConfig(nil), cfg.Webhooks...)
	for i := range out.Webhooks {
		if out.Webhooks[i].Secret != "" {
			out.Webhooks[i].Secret = "[redacted]"
		}
	}
	return &out
}
