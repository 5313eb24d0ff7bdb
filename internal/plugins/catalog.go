// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"fmt"
	goplugin "plugin"
	"sort"
)

// SharedObjectSymbol is the symbol a shared object plugin must export:
// a func() *plugins.Plugin.
const SharedObjectSymbol = "New"

// Catalog maps built-in plugin names to their factories. It is populated
// explicitly by the caller; there is no package-level registration.
type Catalog struct {
	factories map[string]Factory
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers a factory under name, replacing any previous entry
func (c *Catalog) Add(name string, factory Factory) *Catalog {
	c.factories[name] = factory
	return c
}

// Lookup returns the factory registered under name
func (c *Catalog) Lookup(name string) (Factory, bool) {
	f, ok := c.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Opener produces a plugin factory from a file on disk
type Opener interface {
	Open(path string) (Factory, error)
}

// SharedObjectOpener loads Go plugins built with -buildmode=plugin
type SharedObjectOpener struct{}

// Open loads the shared object and resolves its constructor
func (SharedObjectOpener) Open(path string) (Factory, error) {
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared object: %w", err)
	}
	sym, err := so.Lookup(SharedObjectSymbol)
	if err != nil {
		return nil, fmt.Errorf("shared object does not export %s: %w", SharedObjectSymbol, err)
	}

	switch fn := sym.(type) {
	case func() *Plugin:
		return fn, nil
	case *func() *Plugin:
		return *fn, nil
	default:
		return nil, fmt.Errorf("symbol %s has type %T, want func() *plugins.Plugin", SharedObjectSymbol, sym)
	}
}
