package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repofetch/internal/preset"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List available pattern presets",
	Long: `List the pattern presets usable with 'fetch --preset'. Built-in presets
can be replaced and extended through the presets file named in the
configuration.`,
	RunE: runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := preset.Load(cfg.PresetsFile)
	if err != nil {
		return err
	}
	for _, name := range store.Names() {
		p, err := store.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-16s %s\n", name, p.Description)
	}
	return nil
}
