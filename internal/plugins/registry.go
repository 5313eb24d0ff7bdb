// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"
)

// Registry composes the loader and the hook runner. It is the unit the build
// pipeline depends on.
type Registry struct {
	*HookRunner
	loader *Loader
}

// NewRegistry creates a registry over the given loader
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		HookRunner: NewHookRunner(loader),
		loader:     loader,
	}
}

// Load discovers, orders and initializes the plugins
func (r *Registry) Load(ctx context.Context) error {
	return r.loader.LoadAll(ctx)
}

// Shutdown shuts the plugins down in reverse load order
func (r *Registry) Shutdown(ctx context.Context) {
	r.loader.Shutdown(ctx)
}

// Enable re-enables a plugin
func (r *Registry) Enable(name string) error {
	return r.loader.Enable(name)
}

// Disable turns a plugin off for every subsequent hook call
func (r *Registry) Disable(name string) error {
	return r.loader.Disable(name)
}

// Plugins returns every candidate in discovery order
func (r *Registry) Plugins() []*LoadedPlugin {
	return r.loader.Plugins()
}

// Ordered returns the valid plugins in load order
func (r *Registry) Ordered() []*LoadedPlugin {
	return r.loader.Ordered()
}

// Order returns the load order as plugin names
func (r *Registry) Order() []string {
	return r.loader.Order()
}

// Warnings returns the non-fatal load problems
func (r *Registry) Warnings() []string {
	return r.loader.Warnings()
}

// Failed returns the plugins that could not be loaded
func (r *Registry) Failed() []*LoadedPlugin {
	return r.loader.Failed()
}
