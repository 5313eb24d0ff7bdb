// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const appName = "mcpsmith"

// Set at link time with -ldflags "-X github.com/noldarim/mcpsmith/internal/cli.appVersion=..."
var appVersion = "0.1.0-alpha"

type rootOptions struct {
	configPath string
	workDir    string
}

// Execute runs the CLI application
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}

// NewRootCommand builds the command tree writing human output to out
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Build a containerized MCP server from tool and connector modules",
		Long: `mcpsmith discovers tool and connector modules, generates the server
manifest, runtime configuration and Dockerfile, and builds the container image.

Every stage is checkpointed: an interrupted build can be resumed within an hour,
and a failed build removes whatever it produced.`,
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetVersionTemplate(fmt.Sprintf("%s version {{.Version}}\n", appName))

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: ./mcpsmith.yaml or ~/.mcpsmith/mcpsmith.yaml)")
	cmd.PersistentFlags().StringVar(&opts.workDir, "workdir", "", "project directory (default: project.work_dir from config)")

	cmd.AddCommand(
		newBuildCommand(opts),
		newResumeCommand(opts),
		newStatusCommand(opts),
		newRollbackCommand(opts),
		newPluginsCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}
