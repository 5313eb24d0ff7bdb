// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noldarim/mcpsmith/internal/checkpoint"
	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/internal/plugins/builtin"
)

func newStatusCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored checkpoint and whether it can be resumed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			defer func() { _ = logger.CloseGlobal() }()

			status, err := checkpoint.NewOSStore(cfg.Project.WorkDir).CheckResume()
			if err != nil {
				return err
			}
			printResumeStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newRollbackCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Remove the files and image recorded in the stored checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				_ = logger.CloseGlobal()
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			report, err := a.orchestrator.Rollback(ctx)
			if err != nil {
				return fmt.Errorf("failed to read checkpoint: %w", err)
			}
			printRollback(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newPluginsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugins",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plugins in load order with their state and hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			defer func() { _ = logger.CloseGlobal() }()

			ctx := cmd.Context()
			registry := plugins.NewRegistry(plugins.NewLoader(cfg.Plugins, plugins.WithCatalog(builtin.Catalog())))
			if err := registry.Load(ctx); err != nil {
				return err
			}
			defer registry.Shutdown(context.WithoutCancel(ctx))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, pluginTable(registry.Ordered(), registry.Failed()))
			for _, w := range registry.Warnings() {
				fmt.Fprintf(out, "%s %s\n", warnStyle.Render("!"), w)
			}
			return nil
		},
	})
	return cmd
}
