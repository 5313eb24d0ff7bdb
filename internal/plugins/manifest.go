// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the descriptor every plugin directory carries
const ManifestFile = "plugin.yaml"

const builtinPrefix = "builtin:"

// PluginManifest is the on-disk plugin descriptor. Fields set here take
// precedence over the metadata the plugin code reports.
type PluginManifest struct {
	Name         string         `yaml:"name"`
	Version      string         `yaml:"version"`
	Description  string         `yaml:"description"`
	Author       string         `yaml:"author"`
	Dependencies []string       `yaml:"dependencies"`
	Entry        string         `yaml:"entry"` // "builtin:<name>" or a shared object path relative to the manifest
	ConfigSchema map[string]any `yaml:"config_schema"`
	Config       map[string]any `yaml:"config"`
}

// ReadManifest parses the plugin.yaml in dir
func ReadManifest(dir string) (*PluginManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a plugin descriptor. Unknown fields are rejected.
func ParseManifest(data []byte) (*PluginManifest, error) {
	var m PluginManifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid plugin manifest: %w", err)
	}
	if strings.TrimSpace(m.Entry) == "" {
		return nil, errors.New("invalid plugin manifest: entry is required")
	}
	return &m, nil
}

// BuiltinName returns the catalog name when the entry refers to a built-in plugin
func (m *PluginManifest) BuiltinName() (string, bool) {
	if !strings.HasPrefix(m.Entry, builtinPrefix) {
		return "", false
	}
	return strings.TrimPrefix(m.Entry, builtinPrefix), true
}

// apply overlays the descriptor onto the plugin metadata
func (m *PluginManifest) apply(meta *Meta) {
	if m.Name != "" {
		meta.Name = m.Name
	}
	if m.Version != "" {
		meta.Version = m.Version
	}
	if m.Description != "" {
		meta.Description = m.Description
	}
	if m.Author != "" {
		meta.Author = m.Author
	}
	if m.Dependencies != nil {
		meta.Dependencies = m.Dependencies
	}
	if m.ConfigSchema != nil {
		meta.ConfigSchema = m.ConfigSchema
	}
	if m.Config != nil {
		meta.DefaultConfig = mergeConfig(meta.DefaultConfig, m.Config)
	}
}
