// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/lo"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/logger"
)

// Loader discovers plugins, resolves their dependency order and runs their
// init and shutdown hooks. It is not safe for concurrent use.
type Loader struct {
	dir      string
	builtins []string
	disabled map[string]bool
	settings map[string]map[string]any

	catalog *Catalog
	opener  Opener
	now     func() time.Time

	plugins  []*LoadedPlugin          // Discovery order, including load errors
	byName   map[string]*LoadedPlugin // Valid plugins only
	order    []*LoadedPlugin          // Resolved dependency order
	warnings []string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithCatalog sets the built-in plugin catalog
func WithCatalog(c *Catalog) LoaderOption {
	return func(l *Loader) {
		l.catalog = c
	}
}

// WithOpener replaces the shared object opener
func WithOpener(o Opener) LoaderOption {
	return func(l *Loader) {
		l.opener = o
	}
}

// WithClock replaces the time source used for load timestamps
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader creates a loader from the plugins configuration
func NewLoader(cfg config.PluginsConfig, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:      cfg.Dir,
		builtins: cfg.Builtins,
		disabled: lo.SliceToMap(cfg.Disabled, func(name string) (string, bool) { return name, true }),
		settings: cfg.Settings,
		catalog:  NewCatalog(),
		opener:   SharedObjectOpener{},
		now:      time.Now,
		byName:   make(map[string]*LoadedPlugin),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAll discovers every candidate, resolves dependencies and initializes the
// plugins. A candidate that fails validation is recorded and skipped; only
// dependency faults abort the load.
func (l *Loader) LoadAll(ctx context.Context) error {
	log := logger.GetPluginLogger()

	l.plugins = nil
	l.order = nil
	l.warnings = nil
	l.byName = make(map[string]*LoadedPlugin)

	for _, name := range l.builtins {
		l.loadBuiltin(name, builtinPrefix+name, nil)
	}

	if err := l.scanDir(); err != nil {
		return err
	}

	if _, err := l.ResolveDependencies(); err != nil {
		return err
	}

	l.InitializePlugins(ctx)

	log.Info().
		Int("loaded", len(l.order)).
		Int("failed", len(l.Failed())).
		Strs("order", l.Order()).
		Msg("Plugins loaded")
	return nil
}

func (l *Loader) scanDir() error {
	log := logger.GetPluginLogger()

	if l.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			msg := fmt.Sprintf("plugin directory %s does not exist", l.dir)
			l.warnings = append(l.warnings, msg)
			log.Warn().Str("dir", l.dir).Msg("Plugin directory does not exist, skipping")
			return nil
		}
		return fmt.Errorf("failed to read plugin directory %s: %w", l.dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(l.dir, entry.Name())
		switch {
		case entry.IsDir():
			if _, err := os.Stat(filepath.Join(path, ManifestFile)); err != nil {
				log.Debug().Str("dir", path).Msg("No plugin manifest, skipping")
				continue
			}
			l.loadFromDir(path)
		case filepath.Ext(entry.Name()) == ".so":
			l.loadSharedObject(path, strings.TrimSuffix(entry.Name(), ".so"), nil)
		}
	}
	return nil
}

func (l *Loader) loadFromDir(dir string) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		l.recordFailure(filepath.Base(dir), dir, err)
		return
	}

	fallback := manifest.Name
	if fallback == "" {
		fallback = filepath.Base(dir)
	}

	if name, ok := manifest.BuiltinName(); ok {
		l.loadBuiltin(name, dir, manifest)
		return
	}

	entry := manifest.Entry
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(dir, entry)
	}
	l.loadSharedObject(entry, fallback, manifest)
}

func (l *Loader) loadBuiltin(name, source string, manifest *PluginManifest) {
	fallback := name
	if manifest != nil && manifest.Name != "" {
		fallback = manifest.Name
	}

	factory, ok := l.catalog.Lookup(name)
	if !ok {
		l.recordFailure(fallback, source, fmt.Errorf("unknown built-in plugin %q", name))
		return
	}
	l.addCandidate(fallback, source, factory, manifest)
}

func (l *Loader) loadSharedObject(path, fallback string, manifest *PluginManifest) {
	factory, err := l.opener.Open(path)
	if err != nil {
		l.recordFailure(fallback, path, err)
		return
	}
	l.addCandidate(fallback, path, factory, manifest)
}

// addCandidate instantiates and validates one plugin. Failures stay on the candidate.
func (l *Loader) addCandidate(fallback, source string, factory Factory, manifest *PluginManifest) {
	log := logger.GetPluginLogger()

	p, err := instantiate(factory)
	if err != nil {
		l.recordFailure(fallback, source, err)
		return
	}
	if manifest != nil {
		manifest.apply(&p.Meta)
	}

	name := p.Meta.Name
	if name == "" {
		name = fallback
	}

	lp := &LoadedPlugin{
		Name:     name,
		Plugin:   p,
		Source:   source,
		LoadedAt: l.now(),
		State:    StateDiscovered,
	}

	if existing, ok := l.byName[name]; ok {
		l.fail(lp, fmt.Errorf("duplicate plugin name %s (already loaded from %s)", name, existing.Source))
		return
	}

	cfg, err := validatePlugin(p, l.settings[name])
	if err != nil {
		l.fail(lp, err)
		return
	}

	lp.Config = cfg
	lp.State = StateValidated
	lp.Enabled = !l.disabled[name]
	l.plugins = append(l.plugins, lp)
	l.byName[name] = lp

	log.Debug().
		Str("plugin", name).
		Str("version", p.Meta.Version).
		Str("source", source).
		Bool("enabled", lp.Enabled).
		Msg("Plugin validated")
}

func (l *Loader) recordFailure(name, source string, err error) {
	l.fail(&LoadedPlugin{Name: name, Source: source, LoadedAt: l.now()}, err)
}

func (l *Loader) fail(lp *LoadedPlugin, err error) {
	log := logger.GetPluginLogger()

	lp.State = StateLoadError
	lp.Enabled = false
	lp.Err = err
	l.plugins = append(l.plugins, lp)
	l.warnings = append(l.warnings, fmt.Sprintf("plugin %s failed to load: %v", lp.Name, err))

	log.Warn().Err(err).Str("plugin", lp.Name).Str("source", lp.Source).Msg("Plugin failed to load")
}

func instantiate(factory Factory) (p *Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin constructor panicked: %v", r)
		}
	}()
	p = factory()
	if p == nil {
		return nil, errors.New("plugin constructor returned nil")
	}
	return p, nil
}

// validatePlugin checks the capability contract and resolves the configuration
func validatePlugin(p *Plugin, settings map[string]any) (map[string]any, error) {
	meta := p.Meta
	if meta.Name == "" {
		return nil, errors.New("plugin name is required")
	}
	if meta.Version == "" {
		return nil, errors.New("plugin version is required")
	}
	if _, err := semver.NewVersion(meta.Version); err != nil {
		return nil, fmt.Errorf("invalid plugin version %q: %w", meta.Version, err)
	}
	if lo.Contains(meta.Dependencies, meta.Name) {
		return nil, fmt.Errorf("plugin %s depends on itself", meta.Name)
	}
	if dups := lo.FindDuplicates(meta.Dependencies); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate dependencies: %s", strings.Join(dups, ", "))
	}

	cfg := mergeConfig(meta.DefaultConfig, settings)
	if meta.ConfigSchema != nil {
		if err := validateConfig(meta.ConfigSchema, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// validateConfig validates cfg against a JSON schema. Both are normalized
// through JSON so values decoded from YAML compare like JSON values.
func validateConfig(schema, cfg map[string]any) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("invalid config schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to load config schema: %w", err)
	}
	compiled, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config is not JSON serializable: %w", err)
	}
	var value any
	if err := json.Unmarshal(doc, &value); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// mergeConfig overlays override onto base. Nested maps are merged, everything else replaced.
func mergeConfig(base, override map[string]any) map[string]any {
	out := cloneMap(base)
	if out == nil {
		out = make(map[string]any, len(override))
	}
	for k, v := range override {
		if vm, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = mergeConfig(bm, vm)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// ResolveDependencies orders the valid plugins so every plugin follows its
// dependencies. Traversal is depth first in discovery order with three-state
// marking; revisiting an in-progress plugin is a cycle.
func (l *Loader) ResolveDependencies() ([]string, error) {
	const (
		unvisited = iota
		inProgress
		resolved
	)

	marks := make(map[string]int, len(l.byName))
	order := make([]*LoadedPlugin, 0, len(l.byName))
	var path []string

	var visit func(lp *LoadedPlugin) error
	visit = func(lp *LoadedPlugin) error {
		switch marks[lp.Name] {
		case resolved:
			return nil
		case inProgress:
			return &CircularDependencyError{Plugin: lp.Name, Path: append(slices.Clone(path), lp.Name)}
		}

		marks[lp.Name] = inProgress
		path = append(path, lp.Name)

		for _, dep := range lp.Plugin.Meta.Dependencies {
			next, ok := l.byName[dep]
			if !ok {
				return &MissingDependencyError{Plugin: lp.Name, Dependency: dep}
			}
			if err := visit(next); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		marks[lp.Name] = resolved
		order = append(order, lp)
		return nil
	}

	for _, lp := range l.valid() {
		if marks[lp.Name] != unvisited {
			continue
		}
		if err := visit(lp); err != nil {
			l.order = nil
			return nil, fmt.Errorf("failed to resolve plugin dependencies: %w", err)
		}
	}

	l.order = order
	return l.Order(), nil
}

// InitializePlugins runs init hooks in dependency order. A failing plugin is
// recorded and stays enabled; the remaining plugins are still initialized.
func (l *Loader) InitializePlugins(ctx context.Context) {
	log := logger.GetPluginLogger()

	for _, lp := range l.order {
		if !lp.Enabled {
			log.Debug().Str("plugin", lp.Name).Msg("Plugin disabled, skipping init")
			continue
		}

		err := safeCall(func() error {
			if lp.Plugin.Hooks.Init == nil {
				return nil
			}
			return lp.Plugin.Hooks.Init(ctx, cloneMap(lp.Config))
		})
		if err != nil {
			lp.State = StateInitError
			lp.Err = err
			l.warnings = append(l.warnings, fmt.Sprintf("plugin %s failed to initialize: %v", lp.Name, err))
			log.Warn().Err(err).Str("plugin", lp.Name).Msg("Plugin init failed")
			continue
		}
		lp.State = StateInitialized
	}
}

// Shutdown runs shutdown hooks in reverse dependency order. Failures are
// recorded on the plugin so every plugin gets its shutdown attempt.
func (l *Loader) Shutdown(ctx context.Context) {
	log := logger.GetPluginLogger()

	for i := len(l.order) - 1; i >= 0; i-- {
		lp := l.order[i]
		if !lp.Enabled || lp.State == StateShutDown {
			continue
		}

		err := safeCall(func() error {
			if lp.Plugin.Hooks.Shutdown == nil {
				return nil
			}
			return lp.Plugin.Hooks.Shutdown(ctx)
		})
		lp.State = StateShutDown
		if err != nil {
			lp.Err = err
			log.Warn().Err(err).Str("plugin", lp.Name).Msg("Plugin shutdown failed")
			continue
		}
		log.Debug().Str("plugin", lp.Name).Msg("Plugin shut down")
	}
}

// Enable re-enables a plugin without reloading. Plugins that failed to load cannot be enabled.
func (l *Loader) Enable(name string) error {
	lp, err := l.lookup(name)
	if err != nil {
		return err
	}
	if lp.State == StateLoadError {
		return fmt.Errorf("plugin %s failed to load: %w", name, lp.Err)
	}
	lp.Enabled = true
	return nil
}

// Disable excludes a plugin from every hook invocation and from shutdown
func (l *Loader) Disable(name string) error {
	lp, err := l.lookup(name)
	if err != nil {
		return err
	}
	lp.Enabled = false
	return nil
}

func (l *Loader) lookup(name string) (*LoadedPlugin, error) {
	if lp, ok := l.byName[name]; ok {
		return lp, nil
	}
	for _, lp := range l.plugins {
		if lp.Name == name {
			return lp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

// Get returns the plugin registered under name
func (l *Loader) Get(name string) (*LoadedPlugin, bool) {
	lp, err := l.lookup(name)
	return lp, err == nil
}

// Plugins returns every candidate in discovery order, including failed ones
func (l *Loader) Plugins() []*LoadedPlugin {
	return slices.Clone(l.plugins)
}

// Ordered returns the valid plugins in resolved dependency order
func (l *Loader) Ordered() []*LoadedPlugin {
	return slices.Clone(l.order)
}

// Enabled returns the enabled plugins in resolved dependency order
func (l *Loader) Enabled() []*LoadedPlugin {
	return lo.Filter(l.order, func(lp *LoadedPlugin, _ int) bool { return lp.Enabled })
}

// Failed returns the candidates that failed to load
func (l *Loader) Failed() []*LoadedPlugin {
	return lo.Filter(l.plugins, func(lp *LoadedPlugin, _ int) bool { return lp.State == StateLoadError })
}

// Order returns the resolved load order as plugin names
func (l *Loader) Order() []string {
	return lo.Map(l.order, func(lp *LoadedPlugin, _ int) string { return lp.Name })
}

// Warnings returns the non-fatal problems collected while loading
func (l *Loader) Warnings() []string {
	return slices.Clone(l.warnings)
}

func (l *Loader) valid() []*LoadedPlugin {
	return lo.Filter(l.plugins, func(lp *LoadedPlugin, _ int) bool { return lp.State != StateLoadError })
}

// safeCall runs fn and converts a panic into an error
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
