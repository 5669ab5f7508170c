// Package main provides the CLI entry point for the Director, an
// LLM-driven browser-automation orchestrator.
//
// The Director converses with a user, incrementally builds a typed
// workflow of browser/reasoning nodes, and drives a real browser
// through them.
//
// # Basic Usage
//
// Start the server:
//
//	director serve --config director.yaml
//
// Manage database migrations:
//
//	director migrate up
//	director migrate status
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - DATABASE_URL: Postgres/CockroachDB connection URL (in-memory store when unset)
//   - DIRECTOR_ADDR: HTTP listen address override
//   - DIRECTOR_MODEL: default model override
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "director",
		Short: "Director - LLM-driven browser-automation orchestrator",
		Long: `Director converses with a user, builds a typed workflow node graph, and
drives a real web browser through it: log in, scrape, iterate, transform,
decide, write results.

The server exposes the Director Control Loop over HTTP with an SSE
tool-call stream for UI clients.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)
	return rootCmd
}
