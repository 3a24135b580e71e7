package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repofetch/internal/archive"
	"repofetch/internal/errors"
	"repofetch/internal/fetch"
	"repofetch/internal/preset"
	"repofetch/internal/render"
)

var (
	fetchMode       string
	fetchExcludes   []string
	fetchPreset     string
	fetchFormat     string
	fetchArchive    string
	fetchSubmodules bool
	fetchRefresh    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <repository> [file-or-pattern ...]",
	Short: "Fetch files from a remote repository",
	Long: `Fetch files from a remote repository and print them as one annotated
document of fenced code blocks.

A repository is "org/repo" or "org/repo@ref"; a bare name uses the
configured default organization, and configured aliases expand first.
Requests may be exact paths (README.md), glob patterns (src/**/*.go),
or paths with a line or byte selection (main.go:10-40, data.bin@0-1023).

Examples:
  repofetch fetch acme/widgets README.md 'src/**/*.go'
  repofetch fetch acme/widgets@v1.2.0 main.go:1-50 --mode api
  repofetch fetch widgets --preset docs --format json
  repofetch fetch acme/widgets --preset go-source --archive widgets.tar.zst`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchMode, "mode", "auto", "Retrieval mode: api, clone, or auto")
	fetchCmd.Flags().StringSliceVar(&fetchExcludes, "exclude", nil, "Glob patterns to exclude (repeatable)")
	fetchCmd.Flags().StringVar(&fetchPreset, "preset", "", "Named pattern bundle to fetch")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "codeblock", "Output format: codeblock or json")
	fetchCmd.Flags().StringVar(&fetchArchive, "archive", "", "Write results to a zstd-compressed tar archive instead of stdout")
	fetchCmd.Flags().BoolVar(&fetchSubmodules, "submodules", false, "Include submodules when cloning")
	fetchCmd.Flags().BoolVar(&fetchRefresh, "refresh", false, "Discard any cached clone and clone fresh")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	mode, err := fetch.ParseMode(fetchMode)
	if err != nil {
		return err
	}

	a, err := setupApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.resolveIdentity(args[0])
	if err != nil {
		return err
	}

	requests := args[1:]
	excludes := fetchExcludes
	if fetchPreset != "" {
		store, err := preset.Load(a.cfg.PresetsFile)
		if err != nil {
			return err
		}
		p, err := store.Get(fetchPreset)
		if err != nil {
			return err
		}
		requests = append(append([]string{}, p.Include...), requests...)
		excludes = append(excludes, p.Exclude...)
	}
	if len(requests) == 0 {
		return errors.New(errors.InvalidParameter, "nothing to fetch: pass files or patterns, or use --preset")
	}

	result, err := a.orch.Fetch(cmd.Context(), id, requests, fetch.Options{
		Mode:       mode,
		Excludes:   excludes,
		Submodules: fetchSubmodules,
		Refresh:    fetchRefresh,
	})
	if err != nil {
		return err
	}

	if fetchArchive != "" {
		n, err := archive.WriteFile(fetchArchive, result)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d file(s) to %s\n", n, fetchArchive)
		return nil
	}

	switch fetchFormat {
	case "json":
		out, err := render.JSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "codeblock":
		fmt.Print(render.Codeblock(result))
	default:
		return errors.Newf(errors.InvalidParameter, "unknown format %q: want codeblock or json", fetchFormat)
	}
	return nil
}
