// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/modules"
	"github.com/noldarim/mcpsmith/internal/plugins"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func newRegistry(t *testing.T, cfg config.PluginsConfig) *plugins.Registry {
	t.Helper()
	loader := plugins.NewLoader(cfg, plugins.WithCatalog(Register(plugins.NewCatalog(), fixedNow)))
	registry := plugins.NewRegistry(loader)
	require.NoError(t, registry.Load(context.Background()))
	return registry
}

func TestBuiltins_LoadOrder(t *testing.T) {
	registry := newRegistry(t, config.PluginsConfig{
		Builtins: []string{DockerLabelsName, ToolFilterName, BuildInfoName},
	})

	assert.Equal(t, []string{BuildInfoName, DockerLabelsName, ToolFilterName}, registry.Order())
	for _, lp := range registry.Ordered() {
		assert.Equal(t, plugins.StateInitialized, lp.State, lp.Name)
	}
	assert.Equal(t, []string{BuildInfoName, DockerLabelsName, ToolFilterName}, Catalog().Names())
}

func TestBuildInfoAndDockerLabels(t *testing.T) {
	registry := newRegistry(t, config.PluginsConfig{
		Builtins: []string{BuildInfoName, DockerLabelsName},
		Settings: map[string]map[string]any{
			BuildInfoName:    {"vendor": "Acme"},
			DockerLabelsName: {"extra": map[string]any{"com.acme.team": "tools"}},
		},
	})
	ctx := context.Background()

	manifest, err := registry.RunManifestGenerated(ctx, plugins.Manifest{"name": "weather", "version": "1.2.0"})
	require.NoError(t, err)

	info := manifest[BuildInfoKey].(map[string]any)
	assert.Equal(t, "mcpsmith", info["generator"])
	assert.Equal(t, "2026-03-01T12:00:00Z", info["generated_at"])
	assert.Equal(t, "Acme", info["vendor"])

	dockerfile, err := registry.RunDockerfileGenerated(ctx, "# syntax=docker/dockerfile:1\nFROM python:3.12-slim\nWORKDIR /app\n")
	require.NoError(t, err)

	assert.Equal(t, "# syntax=docker/dockerfile:1\nFROM python:3.12-slim\n"+
		"LABEL com.acme.team=\"tools\"\n"+
		"LABEL org.opencontainers.image.created=\"2026-03-01T12:00:00Z\"\n"+
		"LABEL org.opencontainers.image.title=\"weather\"\n"+
		"LABEL org.opencontainers.image.vendor=\"Acme\"\n"+
		"LABEL org.opencontainers.image.version=\"1.2.0\"\n"+
		"WORKDIR /app\n", dockerfile)
}

func TestBuildInfo_RejectsUnknownSettings(t *testing.T) {
	loader := plugins.NewLoader(config.PluginsConfig{
		Builtins: []string{BuildInfoName},
		Settings: map[string]map[string]any{BuildInfoName: {"colour": "blue"}},
	}, plugins.WithCatalog(Catalog()))
	require.NoError(t, loader.LoadAll(context.Background()))

	require.Len(t, loader.Failed(), 1)
	assert.Contains(t, loader.Failed()[0].Err.Error(), "config does not match schema")
}

func TestDockerLabels_RequiresBuildInfo(t *testing.T) {
	loader := plugins.NewLoader(config.PluginsConfig{Builtins: []string{DockerLabelsName}}, plugins.WithCatalog(Catalog()))
	err := loader.LoadAll(context.Background())

	var missing *plugins.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, BuildInfoName, missing.Dependency)
}

func TestToolFilter(t *testing.T) {
	registry := newRegistry(t, config.PluginsConfig{
		Builtins: []string{ToolFilterName},
		Settings: map[string]map[string]any{
			ToolFilterName: {"include": []any{"weather_*", "summarize"}, "exclude": []any{"*_debug"}},
		},
	})
	ctx := context.Background()

	tests := map[string]bool{
		"weather_now":   false,
		"weather_debug": true,
		"summarize":     false,
		"translate":     true,
	}
	for name, disabled := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := registry.RunToolLoaded(ctx, plugins.ToolContext{Module: modules.Module{Name: name}})
			require.NoError(t, err)
			assert.Equal(t, disabled, out.Disabled)
		})
	}
}

func TestToolFilter_InvalidPatternFailsInit(t *testing.T) {
	registry := newRegistry(t, config.PluginsConfig{
		Builtins: []string{ToolFilterName},
		Settings: map[string]map[string]any{ToolFilterName: {"exclude": []any{"[bad"}}},
	})

	lp := registry.Ordered()[0]
	assert.Equal(t, plugins.StateInitError, lp.State)
	assert.Contains(t, lp.Err.Error(), "invalid pattern")
}

func TestInsertLabels_NoFrom(t *testing.T) {
	out := insertLabels("RUN true\n", map[string]string{"a": "b"})
	assert.Equal(t, "LABEL a=\"b\"\nRUN true\n", out)
}
