// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generate renders the artifacts of a server build: the tool manifest,
// the runtime configuration and the Dockerfile.
package generate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noldarim/mcpsmith/internal/credentials"
	"github.com/noldarim/mcpsmith/internal/modules"
)

// ManifestSchemaVersion is bumped when the manifest layout changes incompatibly
const ManifestSchemaVersion = "1"

// ManifestInput is everything the manifest is derived from
type ManifestInput struct {
	Name        string
	Version     string
	Description string
	Transport   string
	Modules     []modules.Module
	Credentials []credentials.Requirement
}

// ManifestBuilder produces the manifest as a generic map so plugins can amend it
type ManifestBuilder struct{}

// NewManifestBuilder creates a manifest builder
func NewManifestBuilder() *ManifestBuilder {
	return &ManifestBuilder{}
}

// Generate builds the manifest. Disabled modules are left out.
func (b *ManifestBuilder) Generate(in ManifestInput) (map[string]any, error) {
	if in.Name == "" {
		return nil, errors.New("manifest requires a server name")
	}

	tools := []any{}
	connectors := []any{}
	for _, m := range in.Modules {
		if m.Disabled {
			continue
		}
		switch m.Kind {
		case modules.KindTool:
			tools = append(tools, toolEntry(m))
		case modules.KindConnector:
			connectors = append(connectors, connectorEntry(m))
		default:
			return nil, fmt.Errorf("module %q has unknown kind %q", m.Name, m.Kind)
		}
	}

	creds := []any{}
	for _, c := range in.Credentials {
		creds = append(creds, map[string]any{
			"name":        c.Name,
			"type":        c.Type,
			"required":    c.Required,
			"description": c.Description,
		})
	}

	return map[string]any{
		"schema_version": ManifestSchemaVersion,
		"name":           in.Name,
		"version":        in.Version,
		"description":    in.Description,
		"transport":      in.Transport,
		"tools":          tools,
		"connectors":     connectors,
		"credentials":    creds,
	}, nil
}

func toolEntry(m modules.Module) map[string]any {
	params := []any{}
	for _, p := range m.Params {
		params = append(params, map[string]any{
			"name":        p.Name,
			"type":        p.Type,
			"description": p.Description,
		})
	}

	entry := map[string]any{
		"name":        m.Name,
		"description": m.Description,
		"language":    string(m.Language),
		"path":        m.Path,
		"parameters":  params,
	}
	if m.Returns != "" {
		entry["returns"] = m.Returns
	}
	if m.Version != "" {
		entry["version"] = m.Version
	}
	return entry
}

func connectorEntry(m modules.Module) map[string]any {
	methods := make([]any, 0, len(m.Methods))
	for _, method := range m.Methods {
		methods = append(methods, method)
	}

	entry := map[string]any{
		"name":        m.Name,
		"description": m.Description,
		"language":    string(m.Language),
		"path":        m.Path,
		"type":        m.ConnectorType,
		"methods":     methods,
	}
	if m.Version != "" {
		entry["version"] = m.Version
	}
	return entry
}

// RenderManifest serializes a manifest as indented JSON with a trailing newline
func RenderManifest(manifest map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}
