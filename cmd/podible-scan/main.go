// Package main provides podible-scan, a one-shot CLI for running a
// library scan and inspecting its result without starting the HTTP
// server — useful for verifying a library layout or debugging a
// transcode failure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/podible/podible/internal/config"
	"github.com/podible/podible/internal/core"
	"github.com/podible/podible/internal/logger"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "podible-scan [roots...]",
		Short:        "Scan library roots once and report what was found",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args)
		},
	}
	cmd.AddCommand(newStatusCommand())
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "status [roots...]",
		Short:        "Scan once and print the queue/probe status snapshot",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), args)
		},
	}
}

func loadConfigWithRoots(roots []string) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Library.Roots = roots
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScan(ctx context.Context, roots []string) error {
	cfg, err := loadConfigWithRoots(roots)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Environment: cfg.App.Environment, Level: logger.ParseLevel(cfg.Logger.Level)})

	c, err := core.New(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}
	defer c.Close(ctx) //nolint:errcheck // best-effort cleanup for a one-shot CLI

	if err := c.Scanner.Scan(ctx); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c.FeedBooksSorted())
}

func runStatus(ctx context.Context, roots []string) error {
	cfg, err := loadConfigWithRoots(roots)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Environment: cfg.App.Environment, Level: logger.ParseLevel(cfg.Logger.Level)})

	c, err := core.New(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}
	defer c.Close(ctx) //nolint:errcheck // best-effort cleanup for a one-shot CLI

	if err := c.Scanner.Scan(ctx); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c.StatusSnapshot())
}
