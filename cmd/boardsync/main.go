package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/robby/boardsync/internal/auth"
	"github.com/robby/boardsync/internal/gh"
	"github.com/robby/boardsync/internal/reconcile"
	"github.com/robby/boardsync/internal/report"
	"github.com/robby/boardsync/internal/rules"
)

var (
	// CLI flags
	configFlag     string
	projectURLFlag string
	sinceFlag      time.Duration
	verboseFlag    bool
	strictFlag     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "boardsync",
		Short: "Sync GitHub issues and PRs onto a Projects v2 board",
		Long: `boardsync applies a declarative YAML rule file to recently updated
issues and pull requests: adding them to a GitHub Projects v2 board,
placing them in columns, assigning the current sprint, defaulting
assignees, and propagating state from merged PRs to their linked issues.

Every mutation is idempotent: a second run over the same state issues
zero writes.

Authentication:
  1. Environment variable: set GITHUB_TOKEN (the CI path)
  2. GitHub CLI: run 'gh auth login' for local use

The token must have read/write access to projects.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to the YAML rule file (required)")
	rootCmd.Flags().StringVar(&projectURLFlag, "project-url", "", "Project URL override, e.g. https://github.com/orgs/acme/projects/16")
	rootCmd.Flags().DurationVar(&sinceFlag, "since", 24*time.Hour, "How far back to search for updated items")
	rootCmd.Flags().BoolVar(&verboseFlag, "verbose", false, "Debug logging, including the state-verification log")
	rootCmd.Flags().BoolVar(&strictFlag, "strict", false, "Fail the process when any item errors")
	_ = rootCmd.MarkFlagRequired("config")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if verboseFlag {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := rules.Load(configFlag)
	if err != nil {
		return fmt.Errorf("failed to load rule file: %w", err)
	}

	if projectURLFlag != "" {
		override := rules.ProjectRef{URL: projectURLFlag}
		if err := override.Normalize(); err != nil {
			return err
		}
		cfg.Project = override
	}

	scope := cfg.Scope(os.Getenv("BOARDSYNC_USER"))
	if scope.MonitoredUser == "" && len(scope.MonitoredRepos) == 0 {
		return fmt.Errorf("nothing to monitor: configure monitored.user or monitored.repos, or set BOARDSYNC_USER")
	}

	token, err := auth.GetToken()
	if err != nil {
		return err
	}
	client := gh.New(token)

	ctx := context.Background()

	projectID := cfg.Project.ID
	if projectID == "" {
		projectID, err = client.ResolveProject(ctx, cfg.Project.Org, cfg.Project.Number)
		if err != nil {
			return err
		}
	}

	items, err := client.SearchRecentItems(ctx, scope, time.Now().Add(-sinceFlag))
	if err != nil {
		return fmt.Errorf("failed to search for candidate items: %w", err)
	}
	logger.Info("starting sync", "project", projectID, "candidates", len(items), "since", sinceFlag.String())

	runner := reconcile.NewRunner(reconcile.RunnerConfig{
		Accessor:  client,
		Rules:     cfg,
		Scope:     scope,
		ProjectID: projectID,
		Logger:    logger,
	})
	summary := runner.Run(ctx, items)

	if verboseFlag {
		for _, entry := range runner.Verify().Entries() {
			logger.Debug("verification",
				"item", entry.ItemRef, "step", entry.Step, "attempt", entry.Attempt, "error", entry.Err)
		}
	}

	fmt.Print(report.Render(summary))

	if strictFlag && summary.Errors > 0 {
		return fmt.Errorf("%d item(s) failed", summary.Errors)
	}
	return nil
}
