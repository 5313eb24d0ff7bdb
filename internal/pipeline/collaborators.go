// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"

	"github.com/noldarim/mcpsmith/internal/checkpoint"
	"github.com/noldarim/mcpsmith/internal/credentials"
	"github.com/noldarim/mcpsmith/internal/generate"
	"github.com/noldarim/mcpsmith/internal/modules"
	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
	"github.com/noldarim/mcpsmith/pkg/containers/models"
)

// ModuleDiscoverer finds tools and connectors under a base path
type ModuleDiscoverer interface {
	Discover(ctx context.Context, basePath string) (*modules.Discovery, error)
}

// ModuleValidator checks a module set before anything is generated
type ModuleValidator interface {
	Validate(mods []modules.Module) modules.ValidationResult
}

// CredentialDiscoverer derives the credentials a module set needs
type CredentialDiscoverer interface {
	Discover(mods []modules.Module) []credentials.Requirement
}

// CredentialResolver supplies credential values
type CredentialResolver interface {
	Resolve(ctx context.Context, reqs []credentials.Requirement) (*credentials.Resolution, error)
}

// ManifestGenerator builds the tool manifest
type ManifestGenerator interface {
	Generate(in generate.ManifestInput) (map[string]any, error)
}

// ConfigGenerator renders the server runtime configuration
type ConfigGenerator interface {
	Generate(in generate.ConfigInput) (string, error)
}

// DockerfileGenerator renders the container build description
type DockerfileGenerator interface {
	Generate(in generate.DockerfileInput) (string, error)
}

// ImageBuilder builds and removes container images
type ImageBuilder interface {
	Build(ctx context.Context, contextDir, buildFile, tag string, onProgress func(events.BuildEvent)) (string, error)
	RemoveImage(ctx context.Context, imageID string, force bool) error
}

// BuildOptionsSetter is implemented by builders that apply the labels and
// build args left in the build context by before-build hooks
type BuildOptionsSetter interface {
	SetBuildOptions(labels, buildArgs map[string]string)
}

// ImagePublisher tags and pushes built images
type ImagePublisher interface {
	Tag(ctx context.Context, imageID string, tags []string) (models.TagResult, error)
	Push(ctx context.Context, tag, registryURL string) error
}

// Hooks is the plugin surface the pipeline calls into
type Hooks interface {
	RunBeforeBuild(ctx context.Context, bc plugins.BuildContext) (plugins.BuildContext, error)
	RunAfterBuild(ctx context.Context, bc plugins.BuildContext) error
	RunBeforeDeploy(ctx context.Context, dc plugins.DeployContext) (plugins.DeployContext, error)
	RunAfterDeploy(ctx context.Context, dc plugins.DeployContext) error
	RunToolLoaded(ctx context.Context, tc plugins.ToolContext) (plugins.ToolContext, error)
	RunConnectorLoaded(ctx context.Context, cc plugins.ConnectorContext) error
	RunManifestGenerated(ctx context.Context, manifest plugins.Manifest) (plugins.Manifest, error)
	RunDockerfileGenerated(ctx context.Context, dockerfile string) (string, error)
}

// CheckpointStore persists run progress
type CheckpointStore interface {
	Save(cp *checkpoint.Checkpoint) error
	Load() (*checkpoint.Checkpoint, error)
	Clear() error
	CheckResume() (checkpoint.ResumeStatus, error)
}

// noPlugins is used when no plugin registry is configured
type noPlugins struct{}

func (noPlugins) Enabled() []*plugins.LoadedPlugin { return nil }
