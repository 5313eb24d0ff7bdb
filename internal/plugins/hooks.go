// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noldarim/mcpsmith/internal/logger"
)

// PluginSource supplies the enabled plugins in load order
type PluginSource interface {
	Enabled() []*LoadedPlugin
}

// HookRunner invokes lifecycle hooks across the enabled plugins, one at a time
// in load order. Every plugin receives its own copy of the value it is handed.
//
// Three disciplines apply:
//   - transform (manifest, dockerfile): each plugin's output is the next plugin's input
//   - gate (before-build, before-deploy, tool-loaded): a plugin may replace the
//     value and may stop the remaining plugins for this call
//   - fire-and-forget (after-build, after-deploy, connector-loaded): every
//     plugin observes the same value
//
// A failing or panicking hook aborts the chain with a *HookError.
type HookRunner struct {
	source PluginSource
	tracer trace.Tracer
}

// NewHookRunner creates a hook runner over the given plugin source
func NewHookRunner(source PluginSource) *HookRunner {
	return &HookRunner{
		source: source,
		tracer: otel.Tracer("github.com/noldarim/mcpsmith/internal/plugins"),
	}
}

// RunBeforeBuild runs the before-build gate chain
func (r *HookRunner) RunBeforeBuild(ctx context.Context, bc BuildContext) (BuildContext, error) {
	return runGate(ctx, r, EventBeforeBuild, bc, BuildContext.Clone,
		func(h Hooks) func(context.Context, BuildContext) (GateResult[BuildContext], error) { return h.BeforeBuild })
}

// RunAfterBuild notifies every plugin that the image was built
func (r *HookRunner) RunAfterBuild(ctx context.Context, bc BuildContext) error {
	return runFire(ctx, r, EventAfterBuild, bc, BuildContext.Clone,
		func(h Hooks) func(context.Context, BuildContext) error { return h.AfterBuild })
}

// RunBeforeDeploy runs the before-deploy gate chain
func (r *HookRunner) RunBeforeDeploy(ctx context.Context, dc DeployContext) (DeployContext, error) {
	return runGate(ctx, r, EventBeforeDeploy, dc, DeployContext.Clone,
		func(h Hooks) func(context.Context, DeployContext) (GateResult[DeployContext], error) { return h.BeforeDeploy })
}

// RunAfterDeploy notifies every plugin that tagging and pushing finished
func (r *HookRunner) RunAfterDeploy(ctx context.Context, dc DeployContext) error {
	return runFire(ctx, r, EventAfterDeploy, dc, DeployContext.Clone,
		func(h Hooks) func(context.Context, DeployContext) error { return h.AfterDeploy })
}

// RunToolLoaded runs the on-tool-loaded gate chain for one discovered tool
func (r *HookRunner) RunToolLoaded(ctx context.Context, tc ToolContext) (ToolContext, error) {
	return runGate(ctx, r, EventToolLoaded, tc, ToolContext.Clone,
		func(h Hooks) func(context.Context, ToolContext) (GateResult[ToolContext], error) { return h.ToolLoaded })
}

// RunConnectorLoaded notifies every plugin of one discovered connector
func (r *HookRunner) RunConnectorLoaded(ctx context.Context, cc ConnectorContext) error {
	return runFire(ctx, r, EventConnectorLoaded, cc, ConnectorContext.Clone,
		func(h Hooks) func(context.Context, ConnectorContext) error { return h.ConnectorLoaded })
}

// RunManifestGenerated folds the manifest through every plugin
func (r *HookRunner) RunManifestGenerated(ctx context.Context, manifest Manifest) (Manifest, error) {
	return runTransform(ctx, r, EventManifestGenerated, manifest, Manifest.Clone,
		func(h Hooks) func(context.Context, Manifest) (Manifest, error) { return h.ManifestGenerated })
}

// RunDockerfileGenerated folds the Dockerfile text through every plugin
func (r *HookRunner) RunDockerfileGenerated(ctx context.Context, dockerfile string) (string, error) {
	return runTransform(ctx, r, EventDockerfileGenerated, dockerfile, func(s string) string { return s },
		func(h Hooks) func(context.Context, string) (string, error) { return h.DockerfileGenerated })
}

func runGate[T any](
	ctx context.Context,
	r *HookRunner,
	event Event,
	value T,
	clone func(T) T,
	pick func(Hooks) func(context.Context, T) (GateResult[T], error),
) (T, error) {
	log := logger.GetPluginLogger()

	current := value
	for _, lp := range r.source.Enabled() {
		hook := pick(lp.Plugin.Hooks)
		if hook == nil {
			continue
		}

		var result GateResult[T]
		err := r.invoke(ctx, lp, event, func(ctx context.Context) error {
			var err error
			result, err = hook(ctx, clone(current))
			return err
		})
		if err != nil {
			return current, err
		}

		if result.Context != nil {
			current = *result.Context
		}
		if result.Stop {
			log.Debug().Str("plugin", lp.Name).Str("event", string(event)).Msg("Hook chain stopped by plugin")
			break
		}
	}
	return current, nil
}

func runTransform[T any](
	ctx context.Context,
	r *HookRunner,
	event Event,
	value T,
	clone func(T) T,
	pick func(Hooks) func(context.Context, T) (T, error),
) (T, error) {
	current := value
	for _, lp := range r.source.Enabled() {
		hook := pick(lp.Plugin.Hooks)
		if hook == nil {
			continue
		}

		var next T
		err := r.invoke(ctx, lp, event, func(ctx context.Context) error {
			var err error
			next, err = hook(ctx, clone(current))
			return err
		})
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

func runFire[T any](
	ctx context.Context,
	r *HookRunner,
	event Event,
	value T,
	clone func(T) T,
	pick func(Hooks) func(context.Context, T) error,
) error {
	for _, lp := range r.source.Enabled() {
		hook := pick(lp.Plugin.Hooks)
		if hook == nil {
			continue
		}

		if err := r.invoke(ctx, lp, event, func(ctx context.Context) error {
			return hook(ctx, clone(value))
		}); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs one hook inside a span and wraps any failure with the plugin and event
func (r *HookRunner) invoke(ctx context.Context, lp *LoadedPlugin, event Event, fn func(context.Context) error) error {
	log := logger.GetPluginLogger()

	ctx, span := r.tracer.Start(ctx, "plugin.hook",
		trace.WithAttributes(
			attribute.String("plugin.name", lp.Name),
			attribute.String("plugin.event", string(event)),
		))
	defer span.End()

	if err := safeCall(func() error { return fn(ctx) }); err != nil {
		hookErr := &HookError{Plugin: lp.Name, Event: event, Err: err}
		span.RecordError(hookErr)
		span.SetStatus(codes.Error, "hook failed")
		log.Error().Err(err).Str("plugin", lp.Name).Str("event", string(event)).Msg("Plugin hook failed")
		return hookErr
	}

	log.Trace().Str("plugin", lp.Name).Str("event", string(event)).Msg("Plugin hook completed")
	return nil
}
