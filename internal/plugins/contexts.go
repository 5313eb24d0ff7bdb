// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"maps"
	"slices"

	"github.com/noldarim/mcpsmith/internal/modules"
)

// GateResult is returned by gate hooks. A non-nil Context replaces the value
// passed to the next plugin; Stop skips the remaining plugins for this call.
type GateResult[T any] struct {
	Context *T
	Stop    bool
}

// Continue passes the context through unchanged
func Continue[T any]() GateResult[T] {
	return GateResult[T]{}
}

// Replace hands a modified context to the next plugin
func Replace[T any](v T) GateResult[T] {
	return GateResult[T]{Context: &v}
}

// BuildContext is passed to the build hooks
type BuildContext struct {
	RunID       string
	ProjectName string
	Version     string
	WorkDir     string
	OutputDir   string
	Dockerfile  string
	ImageTag    string
	ImageID     string // Set for after-build
	DryRun      bool
	Modules     []string
	Labels      map[string]string
	BuildArgs   map[string]string
	Metadata    map[string]any
}

// Clone returns a deep copy
func (c BuildContext) Clone() BuildContext {
	c.Modules = slices.Clone(c.Modules)
	c.Labels = maps.Clone(c.Labels)
	c.BuildArgs = maps.Clone(c.BuildArgs)
	c.Metadata = cloneMap(c.Metadata)
	return c
}

// DeployContext is passed to the deploy hooks
type DeployContext struct {
	RunID       string
	ImageID     string
	Tags        []string
	RegistryURL string
	Push        bool
	Applied     []string // Set for after-deploy
	Pushed      []string // Set for after-deploy
	Metadata    map[string]any
}

// Clone returns a deep copy
func (c DeployContext) Clone() DeployContext {
	c.Tags = slices.Clone(c.Tags)
	c.Applied = slices.Clone(c.Applied)
	c.Pushed = slices.Clone(c.Pushed)
	c.Metadata = cloneMap(c.Metadata)
	return c
}

// ToolContext is passed to on-tool-loaded. Setting Disabled drops the tool from the build.
type ToolContext struct {
	Module   modules.Module
	Disabled bool
}

// Clone returns a deep copy
func (c ToolContext) Clone() ToolContext {
	c.Module = cloneModule(c.Module)
	return c
}

// ConnectorContext is passed to on-connector-loaded
type ConnectorContext struct {
	Module modules.Module
}

// Clone returns a deep copy
func (c ConnectorContext) Clone() ConnectorContext {
	c.Module = cloneModule(c.Module)
	return c
}

// Manifest is the generated tool manifest as a JSON-shaped map
type Manifest map[string]any

// Clone returns a deep copy
func (m Manifest) Clone() Manifest {
	if m == nil {
		return nil
	}
	return Manifest(cloneMap(m))
}

func cloneModule(m modules.Module) modules.Module {
	m.Params = slices.Clone(m.Params)
	m.Methods = slices.Clone(m.Methods)
	m.Credentials = slices.Clone(m.Credentials)
	m.Metadata = cloneMap(m.Metadata)
	return m
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Manifest:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}
