// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/noldarim/mcpsmith/internal/checkpoint"
	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/credentials"
	"github.com/noldarim/mcpsmith/internal/generate"
	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/internal/modules"
	"github.com/noldarim/mcpsmith/internal/pipeline"
	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/internal/plugins/builtin"
	"github.com/noldarim/mcpsmith/internal/telemetry"
	"github.com/noldarim/mcpsmith/pkg/containers/models"
	"github.com/noldarim/mcpsmith/pkg/containers/service"
)

// app holds the wired collaborators for one command invocation
type app struct {
	cfg          *config.AppConfig
	registry     *plugins.Registry
	images       *service.ImageService
	orchestrator *pipeline.Orchestrator
	closers      []func(ctx context.Context)
}

// loadConfig reads the configuration and starts file logging. The terminal
// is left to the progress output.
func loadConfig(opts *rootOptions) (*config.AppConfig, error) {
	cfg, err := config.NewConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.workDir != "" {
		cfg.Project.WorkDir = opts.workDir
	}
	if cfg.Project.WorkDir, err = filepath.Abs(cfg.Project.WorkDir); err != nil {
		return nil, fmt.Errorf("failed to resolve work dir: %w", err)
	}
	if !filepath.IsAbs(cfg.Plugins.Dir) {
		cfg.Plugins.Dir = filepath.Join(cfg.Project.WorkDir, cfg.Plugins.Dir)
	}

	if err := logger.Initialize(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// newApp wires the pipeline. Plugins are loaded and initialized here, so a
// dependency cycle fails the command before any stage runs.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, appVersion)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(ctx context.Context) { _ = shutdownTracing(ctx) })

	a.registry = plugins.NewRegistry(plugins.NewLoader(cfg.Plugins, plugins.WithCatalog(builtin.Catalog())))
	if err := a.registry.Load(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, a.registry.Shutdown)

	imageOpts := []service.Option{
		service.WithBuildArgs(cfg.Build.BuildArgs),
		service.WithContextExclude(".git", ".mcpsmith", checkpoint.FileName),
		service.WithPushRetry(uint(cfg.Registry.Retries)+1, cfg.Registry.RetryDelay),
	}
	if cfg.Registry.Username != "" {
		imageOpts = append(imageOpts, service.WithRegistryAuth(&models.RegistryAuth{
			Username:      cfg.Registry.Username,
			Password:      cfg.Registry.Password,
			ServerAddress: cfg.Registry.URL,
		}))
	}
	a.images, err = service.NewImageService(logPublisher{}, cfg.Container.DockerHost, imageOpts...)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) { _ = a.images.Close() })

	var resolverOpts []credentials.ResolverOption
	if cfg.Credentials.Interactive {
		resolverOpts = append(resolverOpts, credentials.WithPrompter(credentials.NewHuhPrompter()))
	}

	a.orchestrator, err = pipeline.NewOrchestrator(cfg, pipeline.Dependencies{
		Discoverer:  modules.NewFileDiscoverer(),
		Validator:   modules.NewValidator(),
		Credentials: credentials.NewDiscoverer(),
		Resolver:    credentials.NewResolver(cfg.Credentials, resolverOpts...),
		Manifests:   generate.NewManifestBuilder(),
		Configs:     generate.NewConfigRenderer(),
		Dockerfiles: generate.NewDockerfileRenderer(),
		Builder:     a.images,
		Publisher:   a.images,
		Hooks:       a.registry,
		Checkpoints: checkpoint.NewOSStore(cfg.Project.WorkDir),
		FS:          osfs.New(cfg.Project.WorkDir),
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
	_ = logger.CloseGlobal()
}
