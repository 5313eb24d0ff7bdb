// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mcpsmith/internal/config"
)

// recorder collects the order in which lifecycle hooks fire
type recorder struct {
	calls []string
}

func (r *recorder) plugin(name string, deps ...string) Factory {
	return func() *Plugin {
		return &Plugin{
			Meta: Meta{Name: name, Version: "1.0.0", Dependencies: deps},
			Hooks: Hooks{
				Init: func(ctx context.Context, cfg map[string]any) error {
					r.calls = append(r.calls, "init:"+name)
					return nil
				},
				Shutdown: func(ctx context.Context) error {
					r.calls = append(r.calls, "shutdown:"+name)
					return nil
				},
			},
		}
	}
}

func newTestLoader(cat *Catalog, builtins ...string) *Loader {
	return NewLoader(config.PluginsConfig{Builtins: builtins}, WithCatalog(cat))
}

func TestLoader_DependencyOrdering(t *testing.T) {
	rec := &recorder{}
	cat := NewCatalog().
		Add("A", rec.plugin("A", "B")).
		Add("B", rec.plugin("B", "C")).
		Add("C", rec.plugin("C"))

	loader := newTestLoader(cat, "A", "B", "C")
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"C", "B", "A"}, loader.Order())
	assert.Equal(t, []string{"init:C", "init:B", "init:A"}, rec.calls)

	rec.calls = nil
	loader.Shutdown(context.Background())
	assert.Equal(t, []string{"shutdown:A", "shutdown:B", "shutdown:C"}, rec.calls)

	for _, lp := range loader.Plugins() {
		assert.Equal(t, StateShutDown, lp.State)
	}
}

func TestLoader_CycleDetectedBeforeInit(t *testing.T) {
	rec := &recorder{}
	cat := NewCatalog().
		Add("X", rec.plugin("X", "Y")).
		Add("Y", rec.plugin("Y", "X"))

	loader := newTestLoader(cat, "X", "Y")
	err := loader.LoadAll(context.Background())

	require.Error(t, err)
	var cycleErr *CircularDependencyError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, "X", cycleErr.Plugin)
	assert.Equal(t, []string{"X", "Y", "X"}, cycleErr.Path)
	assert.Empty(t, rec.calls, "no init hook may run when resolution fails")
	assert.Empty(t, loader.Order())
}

func TestLoader_MissingDependency(t *testing.T) {
	rec := &recorder{}
	cat := NewCatalog().Add("A", rec.plugin("A", "ghost"))

	err := newTestLoader(cat, "A").LoadAll(context.Background())

	var missing *MissingDependencyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "A", missing.Plugin)
	assert.Equal(t, "ghost", missing.Dependency)
	assert.Empty(t, rec.calls)
}

func TestLoader_InitFailureIsIsolated(t *testing.T) {
	rec := &recorder{}
	failing := func() *Plugin {
		p := rec.plugin("broken")()
		p.Hooks.Init = func(ctx context.Context, cfg map[string]any) error {
			rec.calls = append(rec.calls, "init:broken")
			return errors.New("boom")
		}
		return p
	}
	panicking := func() *Plugin {
		p := rec.plugin("wild")()
		p.Hooks.Init = func(ctx context.Context, cfg map[string]any) error {
			panic("unexpected")
		}
		return p
	}
	cat := NewCatalog().
		Add("broken", failing).
		Add("wild", panicking).
		Add("healthy", rec.plugin("healthy"))

	loader := newTestLoader(cat, "broken", "wild", "healthy")
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"init:broken", "init:healthy"}, rec.calls)

	broken, ok := loader.Get("broken")
	require.True(t, ok)
	assert.Equal(t, StateInitError, broken.State)
	assert.True(t, broken.Enabled, "init failures keep the plugin enabled")
	assert.EqualError(t, broken.Err, "boom")

	wild, _ := loader.Get("wild")
	assert.Equal(t, StateInitError, wild.State)
	assert.Contains(t, wild.Err.Error(), "panic: unexpected")

	healthy, _ := loader.Get("healthy")
	assert.Equal(t, StateInitialized, healthy.State)
	assert.Len(t, loader.Warnings(), 2)
}

func TestLoader_ValidationFailureIsIsolated(t *testing.T) {
	rec := &recorder{}
	cat := NewCatalog().
		Add("badversion", func() *Plugin {
			return &Plugin{Meta: Meta{Name: "badversion", Version: "one"}}
		}).
		Add("selfish", rec.plugin("selfish", "selfish")).
		Add("nilplugin", func() *Plugin { return nil }).
		Add("good", rec.plugin("good"))

	loader := newTestLoader(cat, "badversion", "selfish", "nilplugin", "missing", "good")
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"good"}, loader.Order())
	failed := loader.Failed()
	require.Len(t, failed, 4)
	for _, lp := range failed {
		assert.Equal(t, StateLoadError, lp.State)
		assert.False(t, lp.Enabled)
		assert.Error(t, lp.Err)
	}
	assert.Contains(t, failed[0].Err.Error(), "invalid plugin version")
	assert.Contains(t, failed[1].Err.Error(), "depends on itself")
	assert.Contains(t, failed[2].Err.Error(), "returned nil")
	assert.Contains(t, failed[3].Err.Error(), `unknown built-in plugin "missing"`)
}

func TestLoader_DuplicateName(t *testing.T) {
	rec := &recorder{}
	cat := NewCatalog().
		Add("first", rec.plugin("same")).
		Add("second", rec.plugin("same"))

	loader := newTestLoader(cat, "first", "second")
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"same"}, loader.Order())
	require.Len(t, loader.Failed(), 1)
	assert.Contains(t, loader.Failed()[0].Err.Error(), "duplicate plugin name same")
}

func TestLoader_ConfigSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"retries": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"retries"},
	}
	factory := func() *Plugin {
		return &Plugin{Meta: Meta{
			Name:          "configured",
			Version:       "0.2.0",
			ConfigSchema:  schema,
			DefaultConfig: map[string]any{"retries": 3, "nested": map[string]any{"a": 1, "b": 2}},
		}}
	}

	t.Run("defaults merged with settings", func(t *testing.T) {
		loader := NewLoader(config.PluginsConfig{
			Builtins: []string{"configured"},
			Settings: map[string]map[string]any{
				"configured": {"retries": 5, "nested": map[string]any{"b": 20}},
			},
		}, WithCatalog(NewCatalog().Add("configured", factory)))
		require.NoError(t, loader.LoadAll(context.Background()))

		lp, ok := loader.Get("configured")
		require.True(t, ok)
		assert.Equal(t, StateInitialized, lp.State)
		assert.Equal(t, 5, lp.Config["retries"])
		assert.Equal(t, map[string]any{"a": 1, "b": 20}, lp.Config["nested"])
	})

	t.Run("invalid settings rejected", func(t *testing.T) {
		loader := NewLoader(config.PluginsConfig{
			Builtins: []string{"configured"},
			Settings: map[string]map[string]any{"configured": {"retries": 0}},
		}, WithCatalog(NewCatalog().Add("configured", factory)))
		require.NoError(t, loader.LoadAll(context.Background()))

		require.Len(t, loader.Failed(), 1)
		assert.Contains(t, loader.Failed()[0].Err.Error(), "config does not match schema")
	})
}

func TestLoader_EnableDisable(t *testing.T) {
	rec := &recorder{}
	cat := NewCatalog().
		Add("A", rec.plugin("A")).
		Add("B", rec.plugin("B"))

	loader := NewLoader(config.PluginsConfig{Builtins: []string{"A", "B"}, Disabled: []string{"B"}}, WithCatalog(cat))
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"init:A"}, rec.calls)
	assert.Len(t, loader.Enabled(), 1)

	require.NoError(t, loader.Enable("B"))
	assert.Len(t, loader.Enabled(), 2)

	require.NoError(t, loader.Disable("A"))
	rec.calls = nil
	loader.Shutdown(context.Background())
	assert.Equal(t, []string{"shutdown:B"}, rec.calls, "disabled plugins are not shut down")

	err := loader.Enable("nope")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestLoader_ScansDirectory(t *testing.T) {
	dir := t.TempDir()

	writeManifest := func(sub, content string) {
		path := filepath.Join(dir, sub)
		require.NoError(t, os.MkdirAll(path, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFile), []byte(content), 0o644))
	}

	writeManifest("labels", `
name: labels
version: 2.0.0
entry: builtin:labeler
dependencies: [info]
config:
  prefix: org.example
`)
	writeManifest("info", `
entry: builtin:info
`)
	writeManifest("broken", `
name: broken
unexpected: field
entry: builtin:info
`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0o755))

	rec := &recorder{}
	var seenConfig map[string]any
	cat := NewCatalog().
		Add("info", rec.plugin("info")).
		Add("labeler", func() *Plugin {
			p := rec.plugin("labeler-code")()
			p.Hooks.Init = func(ctx context.Context, cfg map[string]any) error {
				seenConfig = cfg
				return nil
			}
			return p
		})

	loader := NewLoader(config.PluginsConfig{Dir: dir}, WithCatalog(cat))
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"info", "labels"}, loader.Order())
	assert.Equal(t, map[string]any{"prefix": "org.example"}, seenConfig)

	labels, _ := loader.Get("labels")
	assert.Equal(t, "2.0.0", labels.Plugin.Meta.Version)
	assert.Equal(t, filepath.Join(dir, "labels"), labels.Source)

	require.Len(t, loader.Failed(), 1)
	assert.Equal(t, "broken", loader.Failed()[0].Name)
}

func TestLoader_MissingDirectoryIsWarning(t *testing.T) {
	loader := NewLoader(config.PluginsConfig{Dir: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, loader.LoadAll(context.Background()))

	require.Len(t, loader.Warnings(), 1)
	assert.Contains(t, loader.Warnings()[0], "does not exist")
	assert.Empty(t, loader.Plugins())
}

type fakeOpener struct {
	factories map[string]Factory
}

func (f fakeOpener) Open(path string) (Factory, error) {
	if factory, ok := f.factories[filepath.Base(path)]; ok {
		return factory, nil
	}
	return nil, errors.New("not a plugin")
}

func TestLoader_SharedObjects(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metrics.so"), []byte{0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.so"), []byte{0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))

	rec := &recorder{}
	loader := NewLoader(config.PluginsConfig{Dir: dir},
		WithOpener(fakeOpener{factories: map[string]Factory{"metrics.so": rec.plugin("metrics")}}))
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Equal(t, []string{"metrics"}, loader.Order())
	require.Len(t, loader.Failed(), 1)
	assert.Equal(t, "corrupt", loader.Failed()[0].Name)
}
