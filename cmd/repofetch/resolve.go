package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"repofetch/internal/errors"
)

var (
	resolveExcludes []string
	resolveFormat   string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <repository> <pattern> [pattern ...]",
	Short: "List the files a set of patterns matches",
	Long: `Expand glob patterns against a repository's file tree without fetching
any content.

Examples:
  repofetch resolve acme/widgets 'src/**/*.go'
  repofetch resolve acme/widgets '**/*.md' --exclude 'vendor/**' --format json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringSliceVar(&resolveExcludes, "exclude", nil, "Glob patterns to exclude (repeatable)")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "human", "Output format: human or json")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.resolveIdentity(args[0])
	if err != nil {
		return err
	}

	files, err := a.orch.ResolvePatterns(cmd.Context(), id, args[1:], resolveExcludes)
	if err != nil {
		return err
	}

	switch resolveFormat {
	case "json":
		out, err := json.MarshalIndent(map[string]interface{}{
			"repository": id.FullName(),
			"count":      len(files),
			"files":      files,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "human":
		for _, f := range files {
			fmt.Println(f)
		}
	default:
		return errors.Newf(errors.InvalidParameter, "unknown format %q: want human or json", resolveFormat)
	}
	return nil
}
