// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/noldarim/mcpsmith/internal/credentials"
	"github.com/noldarim/mcpsmith/internal/modules"
)

// ConfigInput is everything the runtime configuration is derived from
type ConfigInput struct {
	Name         string
	Version      string
	Transport    string
	Port         int
	ManifestFile string
	Modules      []modules.Module
	Credentials  []credentials.Requirement
}

type serverConfig struct {
	Server      serverSection      `yaml:"server"`
	Manifest    string             `yaml:"manifest"`
	Tools       []moduleSection    `yaml:"tools"`
	Connectors  []moduleSection    `yaml:"connectors"`
	Credentials []credentialSection `yaml:"credentials"`
}

type serverSection struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Transport string `yaml:"transport"`
	Port      int    `yaml:"port,omitempty"`
}

type moduleSection struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Language string `yaml:"language"`
	Type     string `yaml:"type,omitempty"`
}

// credentialSection names the variable only; values are supplied at container start
type credentialSection struct {
	Env      string `yaml:"env"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// ConfigRenderer renders the server runtime configuration as YAML
type ConfigRenderer struct{}

// NewConfigRenderer creates a config renderer
func NewConfigRenderer() *ConfigRenderer {
	return &ConfigRenderer{}
}

// Generate renders the runtime configuration
func (r *ConfigRenderer) Generate(in ConfigInput) (string, error) {
	if in.Name == "" {
		return "", errors.New("config requires a server name")
	}
	if in.Transport != "stdio" && in.Transport != "http" {
		return "", fmt.Errorf("unsupported transport %q", in.Transport)
	}

	cfg := serverConfig{
		Server: serverSection{
			Name:      in.Name,
			Version:   in.Version,
			Transport: in.Transport,
		},
		Manifest:    in.ManifestFile,
		Tools:       []moduleSection{},
		Connectors:  []moduleSection{},
		Credentials: []credentialSection{},
	}
	if in.Transport == "http" {
		cfg.Server.Port = in.Port
	}

	for _, m := range in.Modules {
		if m.Disabled {
			continue
		}
		section := moduleSection{Name: m.Name, Path: m.Path, Language: string(m.Language)}
		if m.Kind == modules.KindConnector {
			section.Type = m.ConnectorType
			cfg.Connectors = append(cfg.Connectors, section)
		} else {
			cfg.Tools = append(cfg.Tools, section)
		}
	}

	for _, c := range in.Credentials {
		cfg.Credentials = append(cfg.Credentials, credentialSection{Env: c.Name, Type: c.Type, Required: c.Required})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	return "# Generated by mcpsmith. Do not edit.\n" + buf.String(), nil
}
