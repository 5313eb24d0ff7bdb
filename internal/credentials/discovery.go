// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"strings"

	"github.com/samber/lo"

	"github.com/noldarim/mcpsmith/internal/modules"
)

// Requirement is a credential the generated server needs at runtime
type Requirement struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Required    bool     `json:"required" yaml:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Modules     []string `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// Credential types
const (
	TypeAPIKey   = "api_key"
	TypeToken    = "token"
	TypeURL      = "url"
	TypePassword = "password"
	TypeSecret   = "secret"
)

// connectorConventions are credentials implied by a connector's declared type
var connectorConventions = map[string][]Requirement{
	"database": {{Name: "DATABASE_URL", Type: TypeURL, Required: true, Description: "Database connection string"}},
	"postgres": {{Name: "DATABASE_URL", Type: TypeURL, Required: true, Description: "PostgreSQL connection string"}},
	"redis":    {{Name: "REDIS_URL", Type: TypeURL, Required: true, Description: "Redis connection string"}},
	"http":     {{Name: "API_BASE_URL", Type: TypeURL, Required: false, Description: "Base URL of the remote API"}},
	"s3": {
		{Name: "AWS_ACCESS_KEY_ID", Type: TypeAPIKey, Required: true, Description: "AWS access key"},
		{Name: "AWS_SECRET_ACCESS_KEY", Type: TypeSecret, Required: true, Description: "AWS secret key"},
	},
}

// Discoverer derives credential requirements from module declarations
type Discoverer struct{}

// NewDiscoverer creates a credential discoverer
func NewDiscoverer() *Discoverer {
	return &Discoverer{}
}

// Discover merges @credential tags, metadata "credentials" entries and connector
// conventions. A credential required by any module is required overall.
func (d *Discoverer) Discover(mods []modules.Module) []Requirement {
	var order []string
	byName := make(map[string]*Requirement)

	add := func(req Requirement, module string) {
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			return
		}
		if req.Type == "" {
			req.Type = InferType(req.Name)
		}

		existing, ok := byName[req.Name]
		if !ok {
			req.Modules = []string{module}
			byName[req.Name] = &req
			order = append(order, req.Name)
			return
		}

		existing.Required = existing.Required || req.Required
		if existing.Description == "" {
			existing.Description = req.Description
		}
		if !lo.Contains(existing.Modules, module) {
			existing.Modules = append(existing.Modules, module)
		}
	}

	for _, m := range mods {
		if m.Disabled {
			continue
		}
		for _, ref := range m.Credentials {
			add(Requirement{Name: ref.Name, Required: ref.Required, Description: ref.Description}, m.Name)
		}
		for _, req := range fromMetadata(m.Metadata) {
			add(req, m.Name)
		}
		if m.Kind == modules.KindConnector {
			for _, req := range connectorConventions[strings.ToLower(m.ConnectorType)] {
				add(req, m.Name)
			}
		}
	}

	reqs := make([]Requirement, 0, len(order))
	for _, name := range order {
		reqs = append(reqs, *byName[name])
	}
	return reqs
}

// fromMetadata reads `credentials: ["NAME", {name:, required:, description:}]`
func fromMetadata(meta map[string]any) []Requirement {
	raw, ok := meta["credentials"].([]any)
	if !ok {
		return nil
	}

	var reqs []Requirement
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			reqs = append(reqs, Requirement{Name: v, Required: true})
		case map[string]any:
			req := Requirement{Required: true}
			req.Name, _ = v["name"].(string)
			req.Type, _ = v["type"].(string)
			req.Description, _ = v["description"].(string)
			if r, ok := v["required"].(bool); ok {
				req.Required = r
			}
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// InferType guesses a credential type from its variable name
func InferType(name string) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.HasSuffix(upper, "_URL") || strings.HasSuffix(upper, "_URI") || strings.HasSuffix(upper, "_DSN"):
		return TypeURL
	case strings.Contains(upper, "TOKEN"):
		return TypeToken
	case strings.Contains(upper, "PASSWORD"):
		return TypePassword
	case strings.Contains(upper, "KEY"):
		return TypeAPIKey
	default:
		return TypeSecret
	}
}
