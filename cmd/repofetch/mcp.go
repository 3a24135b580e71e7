package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"repofetch/internal/mcp"
	"repofetch/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol (MCP) server.

The server lets MCP clients fetch repository files through repofetch.
It communicates over stdio using JSON-RPC 2.0, so logs are forced to
JSON on stderr unless --log-format overrides that.

The server exposes the following tools:
  - fetch_files: Fetch files by path, pattern, or line range
  - get_snippets: Fetch line ranges over the API without cloning
  - get_files_bulk: Fetch files and return structured JSON
  - resolve_patterns: List the files patterns match
  - clone_status: Report the clone cache contents
  - cleanup_clone: Remove the cached clones for a repository

This command is typically invoked by MCP clients, not directly.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Stdout carries the protocol stream, so logs default to machine
	// readable JSON on stderr.
	if flagLogFormat == "" {
		cfg.Logging.Format = "json"
	}
	logger := buildLogger(cfg)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcp.NewServer(mcp.Options{
		Version:      version.Info(),
		Orchestrator: a.orch,
		Clones:       a.clones,
		DefaultOrg:   cfg.Remote.DefaultOrg,
		Aliases:      a.aliases,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting mcp server", map[string]interface{}{
		"version": version.Info(),
	})
	if err := server.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
