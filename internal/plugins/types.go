// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plugins loads build extensions, orders them by their declared
// dependencies and invokes their lifecycle hooks from the build pipeline.
package plugins

import (
	"context"
	"time"
)

// Event names a lifecycle point at which plugin hooks run
type Event string

const (
	EventBeforeBuild         Event = "before-build"
	EventAfterBuild          Event = "after-build"
	EventBeforeDeploy        Event = "before-deploy"
	EventAfterDeploy         Event = "after-deploy"
	EventToolLoaded          Event = "on-tool-loaded"
	EventConnectorLoaded     Event = "on-connector-loaded"
	EventManifestGenerated   Event = "on-manifest-generated"
	EventDockerfileGenerated Event = "on-dockerfile-generated"
)

// Meta describes a plugin. Name is the unique key across the loaded set.
type Meta struct {
	Name         string
	Version      string
	Description  string
	Author       string
	Dependencies []string
	// ConfigSchema is a JSON schema document the resolved configuration must satisfy
	ConfigSchema map[string]any
	// DefaultConfig is merged under the user supplied settings
	DefaultConfig map[string]any
}

// Hooks holds the optional lifecycle handlers of a plugin. A nil handler means
// the plugin does not participate in that event.
type Hooks struct {
	Init     func(ctx context.Context, config map[string]any) error
	Shutdown func(ctx context.Context) error

	BeforeBuild  func(ctx context.Context, bc BuildContext) (GateResult[BuildContext], error)
	AfterBuild   func(ctx context.Context, bc BuildContext) error
	BeforeDeploy func(ctx context.Context, dc DeployContext) (GateResult[DeployContext], error)
	AfterDeploy  func(ctx context.Context, dc DeployContext) error

	ToolLoaded      func(ctx context.Context, tc ToolContext) (GateResult[ToolContext], error)
	ConnectorLoaded func(ctx context.Context, cc ConnectorContext) error

	ManifestGenerated   func(ctx context.Context, manifest Manifest) (Manifest, error)
	DockerfileGenerated func(ctx context.Context, dockerfile string) (string, error)
}

// Plugin is the capability object every plugin source produces
type Plugin struct {
	Meta  Meta
	Hooks Hooks
}

// Factory creates a fresh plugin instance
type Factory func() *Plugin

// State tracks a loaded plugin through its lifecycle
type State int

const (
	StateDiscovered State = iota
	StateValidated
	StateLoadError // Terminal, never enabled
	StateInitialized
	StateInitError // Still enabled
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateValidated:
		return "validated"
	case StateLoadError:
		return "load-error"
	case StateInitialized:
		return "initialized"
	case StateInitError:
		return "init-error"
	case StateShutDown:
		return "shut-down"
	default:
		return "unknown"
	}
}

// LoadedPlugin is a plugin together with its load-time bookkeeping
type LoadedPlugin struct {
	Name     string
	Plugin   *Plugin // Nil when the source could not produce a plugin
	Source   string  // Directory, shared object path or "builtin:<name>"
	Enabled  bool
	Config   map[string]any
	LoadedAt time.Time
	State    State
	Err      error
}

// HasHook reports whether the plugin handles the event
func (lp *LoadedPlugin) HasHook(event Event) bool {
	if lp.Plugin == nil {
		return false
	}
	h := lp.Plugin.Hooks
	switch event {
	case EventBeforeBuild:
		return h.BeforeBuild != nil
	case EventAfterBuild:
		return h.AfterBuild != nil
	case EventBeforeDeploy:
		return h.BeforeDeploy != nil
	case EventAfterDeploy:
		return h.AfterDeploy != nil
	case EventToolLoaded:
		return h.ToolLoaded != nil
	case EventConnectorLoaded:
		return h.ConnectorLoaded != nil
	case EventManifestGenerated:
		return h.ManifestGenerated != nil
	case EventDockerfileGenerated:
		return h.DockerfileGenerated != nil
	default:
		return false
	}
}

// Events lists the events the plugin handles, in lifecycle order
func (lp *LoadedPlugin) Events() []Event {
	all := []Event{
		EventToolLoaded, EventConnectorLoaded, EventManifestGenerated, EventDockerfileGenerated,
		EventBeforeBuild, EventAfterBuild, EventBeforeDeploy, EventAfterDeploy,
	}
	var events []Event
	for _, e := range all {
		if lp.HasHook(e) {
			events = append(events, e)
		}
	}
	return events
}
