package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"repofetch/internal/errors"
	"repofetch/internal/render"
)

var clonesFormat string

var clonesCmd = &cobra.Command{
	Use:   "clones",
	Short: "Manage the local clone cache",
	Long:  "Inspect, evict, and remove the shallow clones kept under the cache root.",
}

var clonesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached clones and cache usage",
	RunE:  runClonesStatus,
}

var clonesCleanupCmd = &cobra.Command{
	Use:   "cleanup <repository>",
	Short: "Remove the cached clones for one repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runClonesCleanup,
}

var clonesEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict idle and over-budget clones",
	Long: `Remove clones idle longer than the configured maximum age, then trim
least-recently-used clones until the cache fits its size budget.
Suitable for a cron job.`,
	RunE: runClonesEvict,
}

var clonesPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every cached clone",
	RunE:  runClonesPurge,
}

func init() {
	clonesStatusCmd.Flags().StringVar(&clonesFormat, "format", "human", "Output format: human or json")
	clonesCmd.AddCommand(clonesStatusCmd)
	clonesCmd.AddCommand(clonesCleanupCmd)
	clonesCmd.AddCommand(clonesEvictCmd)
	clonesCmd.AddCommand(clonesPurgeCmd)
	rootCmd.AddCommand(clonesCmd)
}

func runClonesStatus(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer a.close()

	report := a.clones.Status()
	switch clonesFormat {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "human":
		fmt.Print(render.CloneReport(report))
	default:
		return errors.Newf(errors.InvalidParameter, "unknown format %q: want human or json", clonesFormat)
	}
	return nil
}

func runClonesCleanup(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.resolveIdentity(args[0])
	if err != nil {
		return err
	}
	removed, err := a.clones.Cleanup(id)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d clone(s) for %s\n", removed, id.FullName())
	return nil
}

func runClonesEvict(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer a.close()

	evicted := a.clones.EvictExpired(time.Now())
	if len(evicted) == 0 {
		fmt.Println("Nothing to evict.")
		return nil
	}
	for _, ev := range evicted {
		fmt.Printf("Evicted %s (%s, last used %s)\n", ev.Key, ev.Reason, ev.LastAccess.Format(time.RFC3339))
	}
	return nil
}

func runClonesPurge(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := a.clones.Purge()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d clone(s)\n", removed)
	return nil
}
