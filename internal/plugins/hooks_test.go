// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/modules"
)

// staticSource serves a fixed plugin list in the given order
type staticSource []*LoadedPlugin

func (s staticSource) Enabled() []*LoadedPlugin {
	var out []*LoadedPlugin
	for _, lp := range s {
		if lp.Enabled {
			out = append(out, lp)
		}
	}
	return out
}

func loaded(name string, hooks Hooks) *LoadedPlugin {
	return &LoadedPlugin{
		Name:    name,
		Plugin:  &Plugin{Meta: Meta{Name: name, Version: "1.0.0"}, Hooks: hooks},
		Enabled: true,
		State:   StateInitialized,
	}
}

func TestHookRunner_ManifestTransformChain(t *testing.T) {
	var secondSaw Manifest
	runner := NewHookRunner(staticSource{
		loaded("first", Hooks{ManifestGenerated: func(ctx context.Context, m Manifest) (Manifest, error) {
			m["first"] = true
			return m, nil
		}}),
		loaded("silent", Hooks{}),
		loaded("second", Hooks{ManifestGenerated: func(ctx context.Context, m Manifest) (Manifest, error) {
			secondSaw = m.Clone()
			m["second"] = true
			return m, nil
		}}),
	})

	input := Manifest{"name": "weather"}
	out, err := runner.RunManifestGenerated(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, Manifest{"name": "weather", "first": true, "second": true}, out)
	assert.Contains(t, secondSaw, "first", "second plugin observes the first plugin's output")
	assert.Equal(t, Manifest{"name": "weather"}, input, "caller's manifest is not mutated")
}

func TestHookRunner_DockerfileTransformChain(t *testing.T) {
	runner := NewHookRunner(staticSource{
		loaded("a", Hooks{DockerfileGenerated: func(ctx context.Context, s string) (string, error) {
			return s + "# a\n", nil
		}}),
		loaded("b", Hooks{DockerfileGenerated: func(ctx context.Context, s string) (string, error) {
			return s + "# b\n", nil
		}}),
	})

	out, err := runner.RunDockerfileGenerated(context.Background(), "FROM scratch\n")
	require.NoError(t, err)
	assert.Equal(t, "FROM scratch\n# a\n# b\n", out)
}

func TestHookRunner_GateShortCircuit(t *testing.T) {
	var calls []string
	runner := NewHookRunner(staticSource{
		loaded("gatekeeper", Hooks{
			BeforeBuild: func(ctx context.Context, bc BuildContext) (GateResult[BuildContext], error) {
				calls = append(calls, "before:gatekeeper")
				bc.Labels["gated"] = "yes"
				return GateResult[BuildContext]{Context: &bc, Stop: true}, nil
			},
			AfterBuild: func(ctx context.Context, bc BuildContext) error {
				calls = append(calls, "after:gatekeeper")
				return nil
			},
		}),
		loaded("late", Hooks{
			BeforeBuild: func(ctx context.Context, bc BuildContext) (GateResult[BuildContext], error) {
				calls = append(calls, "before:late")
				return Continue[BuildContext](), nil
			},
			AfterBuild: func(ctx context.Context, bc BuildContext) error {
				calls = append(calls, "after:late")
				return nil
			},
		}),
	})

	bc := BuildContext{ProjectName: "weather", Labels: map[string]string{}}
	out, err := runner.RunBeforeBuild(context.Background(), bc)
	require.NoError(t, err)
	assert.Equal(t, "yes", out.Labels["gated"])
	assert.Empty(t, bc.Labels, "the caller's context is copied, not shared")

	require.NoError(t, runner.RunAfterBuild(context.Background(), out))
	assert.Equal(t, []string{"before:gatekeeper", "after:gatekeeper", "after:late"}, calls)

	calls = nil
	_, err = runner.RunBeforeBuild(context.Background(), bc)
	require.NoError(t, err)
	assert.Equal(t, []string{"before:gatekeeper"}, calls, "stop applies per call")
}

func TestHookRunner_GateReplacementThreads(t *testing.T) {
	runner := NewHookRunner(staticSource{
		loaded("disabler", Hooks{ToolLoaded: func(ctx context.Context, tc ToolContext) (GateResult[ToolContext], error) {
			if tc.Module.Name == "internal-only" {
				tc.Disabled = true
			}
			return Replace(tc), nil
		}}),
		loaded("observer", Hooks{ToolLoaded: func(ctx context.Context, tc ToolContext) (GateResult[ToolContext], error) {
			if !tc.Disabled {
				tc.Module.Description = "checked"
				return Replace(tc), nil
			}
			return Continue[ToolContext](), nil
		}}),
	})

	out, err := runner.RunToolLoaded(context.Background(), ToolContext{Module: modules.Module{Name: "internal-only"}})
	require.NoError(t, err)
	assert.True(t, out.Disabled)
	assert.Empty(t, out.Module.Description)

	out, err = runner.RunToolLoaded(context.Background(), ToolContext{Module: modules.Module{Name: "public"}})
	require.NoError(t, err)
	assert.False(t, out.Disabled)
	assert.Equal(t, "checked", out.Module.Description)
}

func TestHookRunner_FireAndForgetSharesInput(t *testing.T) {
	var seen []string
	observe := func(ctx context.Context, cc ConnectorContext) error {
		seen = append(seen, cc.Module.Methods[0])
		cc.Module.Methods[0] = "mutated"
		return nil
	}
	runner := NewHookRunner(staticSource{
		loaded("a", Hooks{ConnectorLoaded: observe}),
		loaded("b", Hooks{ConnectorLoaded: observe}),
	})

	cc := ConnectorContext{Module: modules.Module{Name: "db", Methods: []string{"query"}}}
	require.NoError(t, runner.RunConnectorLoaded(context.Background(), cc))
	assert.Equal(t, []string{"query", "query"}, seen)
	assert.Equal(t, "query", cc.Module.Methods[0])
}

func TestHookRunner_ErrorAbortsChain(t *testing.T) {
	var lateCalled bool
	runner := NewHookRunner(staticSource{
		loaded("failing", Hooks{BeforeDeploy: func(ctx context.Context, dc DeployContext) (GateResult[DeployContext], error) {
			return GateResult[DeployContext]{}, errors.New("registry unreachable")
		}}),
		loaded("late", Hooks{BeforeDeploy: func(ctx context.Context, dc DeployContext) (GateResult[DeployContext], error) {
			lateCalled = true
			return Continue[DeployContext](), nil
		}}),
	})

	_, err := runner.RunBeforeDeploy(context.Background(), DeployContext{ImageID: "sha256:abc"})
	require.Error(t, err)
	assert.False(t, lateCalled)

	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, "failing", hookErr.Plugin)
	assert.Equal(t, EventBeforeDeploy, hookErr.Event)
	assert.EqualError(t, err, "plugin failing failed in before-deploy: registry unreachable")
	assert.True(t, IsHookError(err))
}

func TestHookRunner_PanicBecomesHookError(t *testing.T) {
	runner := NewHookRunner(staticSource{
		loaded("wild", Hooks{AfterDeploy: func(ctx context.Context, dc DeployContext) error {
			panic("nil map")
		}}),
	})

	err := runner.RunAfterDeploy(context.Background(), DeployContext{})
	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, EventAfterDeploy, hookErr.Event)
	assert.Contains(t, err.Error(), "panic: nil map")
}

func TestHookRunner_SkipsDisabled(t *testing.T) {
	var called bool
	lp := loaded("off", Hooks{AfterBuild: func(ctx context.Context, bc BuildContext) error {
		called = true
		return nil
	}})
	lp.Enabled = false

	require.NoError(t, NewHookRunner(staticSource{lp}).RunAfterBuild(context.Background(), BuildContext{}))
	assert.False(t, called)
}

func TestRegistry_DisableTakesEffectWithoutReload(t *testing.T) {
	var calls []string
	factory := func(name string) Factory {
		return func() *Plugin {
			return &Plugin{
				Meta: Meta{Name: name, Version: "1.0.0"},
				Hooks: Hooks{AfterBuild: func(ctx context.Context, bc BuildContext) error {
					calls = append(calls, name)
					return nil
				}},
			}
		}
	}
	cat := NewCatalog().Add("one", factory("one")).Add("two", factory("two"))

	registry := NewRegistry(NewLoader(config.PluginsConfig{Builtins: []string{"one", "two"}}, WithCatalog(cat)))
	require.NoError(t, registry.Load(context.Background()))
	assert.Equal(t, []string{"one", "two"}, registry.Order())

	require.NoError(t, registry.RunAfterBuild(context.Background(), BuildContext{}))
	require.NoError(t, registry.Disable("one"))
	require.NoError(t, registry.RunAfterBuild(context.Background(), BuildContext{}))

	assert.Equal(t, []string{"one", "two", "two"}, calls)
	registry.Shutdown(context.Background())
}

func TestContexts_CloneIsDeep(t *testing.T) {
	m := Manifest{"tools": []any{map[string]any{"name": "a"}}}
	c := m.Clone()
	c["tools"].([]any)[0].(map[string]any)["name"] = "b"
	assert.Equal(t, "a", m["tools"].([]any)[0].(map[string]any)["name"])

	tc := ToolContext{Module: modules.Module{Params: []modules.Param{{Name: "x"}}, Metadata: map[string]any{"k": "v"}}}
	tcc := tc.Clone()
	tcc.Module.Params[0].Name = "y"
	tcc.Module.Metadata["k"] = "w"
	assert.Equal(t, "x", tc.Module.Params[0].Name)
	assert.Equal(t, "v", tc.Module.Metadata["k"])
}

func TestLoadedPlugin_Events(t *testing.T) {
	lp := loaded("p", Hooks{
		AfterBuild:        func(ctx context.Context, bc BuildContext) error { return nil },
		ManifestGenerated: func(ctx context.Context, m Manifest) (Manifest, error) { return m, nil },
	})
	assert.Equal(t, []Event{EventManifestGenerated, EventAfterBuild}, lp.Events())
	assert.False(t, (&LoadedPlugin{}).HasHook(EventAfterBuild))
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte("name: x\nversion: 1.0.0\nentry: builtin:buildinfo\n"))
	require.NoError(t, err)
	name, ok := m.BuiltinName()
	assert.True(t, ok)
	assert.Equal(t, "buildinfo", name)

	m, err = ParseManifest([]byte("entry: ./x.so\n"))
	require.NoError(t, err)
	_, ok = m.BuiltinName()
	assert.False(t, ok)

	_, err = ParseManifest([]byte("name: x\n"))
	assert.EqualError(t, err, "invalid plugin manifest: entry is required")
}
