// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/internal/pipeline"
)

type buildOptions struct {
	dryRun     bool
	modulesDir string
	outputDir  string
	tags       []string
	push       bool
	registry   string
	resume     bool
	verbose    bool
}

func newBuildCommand(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate server artifacts and build the container image",
		Example: `  mcpsmith build --dry-run
  mcpsmith build --tag registry.example.com/weather:1.2.0 --push
  mcpsmith build --resume`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), cmd.OutOrStdout(), root, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "generate artifacts without building an image")
	f.StringVar(&opts.modulesDir, "modules", "", "modules directory (overrides project.modules_dir)")
	f.StringVarP(&opts.outputDir, "output", "o", "", "output directory for generated files (overrides project.output_dir)")
	f.StringArrayVarP(&opts.tags, "tag", "t", nil, "additional image tag, can be repeated")
	f.BoolVar(&opts.push, "push", false, "push every tag after building")
	f.StringVar(&opts.registry, "registry", "", "registry to push to (overrides registry.url)")
	f.BoolVar(&opts.resume, "resume", false, "continue from a recent checkpoint when one exists")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "show build output")
	return cmd
}

func newResumeCommand(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue the last interrupted build from its checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.Context(), cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "show build output")
	return cmd
}

// applyOverrides folds command-line flags into the loaded configuration
func (o *buildOptions) applyOverrides(cfg *config.AppConfig) error {
	if o.modulesDir != "" {
		cfg.Project.ModulesDir = o.modulesDir
	}
	if o.outputDir != "" {
		cfg.Project.OutputDir = o.outputDir
	}
	if o.registry != "" {
		cfg.Registry.URL = o.registry
	}
	return cfg.Validate()
}

// pipelineOptions merges the flags with the build and registry config sections
func (o *buildOptions) pipelineOptions(cfg *config.AppConfig, out io.Writer) pipeline.Options {
	printer := &progressPrinter{out: out, verbose: o.verbose}
	return pipeline.Options{
		DryRun:      o.dryRun || cfg.Build.DryRun,
		Tags:        lo.Uniq(lo.Flatten([][]string{cfg.Build.Tags, o.tags})),
		Push:        o.push || cfg.Registry.Push,
		RegistryURL: cfg.Registry.URL,
		OnProgress:  printer.onProgress,
	}
}

func runBuild(ctx context.Context, out io.Writer, root *rootOptions, opts *buildOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if err := opts.applyOverrides(cfg); err != nil {
		_ = logger.CloseGlobal()
		return fmt.Errorf("invalid options: %w", err)
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		_ = logger.CloseGlobal()
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	printPluginWarnings(out, a)

	pipeOpts := opts.pipelineOptions(cfg, out)
	if opts.resume {
		status, err := a.orchestrator.CheckResume()
		if err != nil {
			return err
		}
		if status.CanResume {
			fmt.Fprintf(out, "%s %s\n", accentStyle.Render("▸"), status.Message)
			res, err := a.orchestrator.Resume(ctx, pipeOpts)
			return finish(out, res, err)
		}
		if status.Message != "" {
			fmt.Fprintf(out, "%s %s, starting over\n", warnStyle.Render("!"), status.Message)
		}
	}

	fmt.Fprintf(out, "%s Building %s\n", accentStyle.Render("▸"), cfg.ImageTag())
	res, err := a.orchestrator.Run(ctx, pipeOpts)
	return finish(out, res, err)
}

func runResume(ctx context.Context, out io.Writer, root *rootOptions, opts *buildOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		_ = logger.CloseGlobal()
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	printPluginWarnings(out, a)
	res, err := a.orchestrator.Resume(ctx, opts.pipelineOptions(cfg, out))
	if errors.Is(err, pipeline.ErrCannotResume) {
		return fmt.Errorf("%w; run 'mcpsmith build' to start over", err)
	}
	return finish(out, res, err)
}

// finish prints the result. A failed run is reported through the returned error.
func finish(out io.Writer, res *pipeline.Result, err error) error {
	if res != nil {
		printResult(out, res)
	}
	return err
}

func printPluginWarnings(out io.Writer, a *app) {
	for _, w := range a.registry.Warnings() {
		fmt.Fprintf(out, "%s %s\n", warnStyle.Render("!"), w)
	}
}

// signalContext cancels ctx on SIGINT or SIGTERM. A cancelled build rolls back.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
