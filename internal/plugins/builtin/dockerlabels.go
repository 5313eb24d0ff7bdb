// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package builtin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/pkg/containers/validation"
)

type dockerLabelsConfig struct {
	Prefix string            `mapstructure:"prefix"`
	Extra  map[string]string `mapstructure:"extra"`
}

// NewDockerLabels appends OCI image labels to the generated Dockerfile. The
// values come from the manifest, including the timestamp buildinfo writes.
func NewDockerLabels() *plugins.Plugin {
	var cfg dockerLabelsConfig
	labels := map[string]string{}

	return &plugins.Plugin{
		Meta: plugins.Meta{
			Name:         DockerLabelsName,
			Version:      "1.0.0",
			Description:  "Adds OCI labels to the generated Dockerfile",
			Author:       "mcpsmith",
			Dependencies: []string{BuildInfoName},
			DefaultConfig: map[string]any{
				"prefix": "org.opencontainers.image",
			},
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prefix": map[string]any{"type": "string", "minLength": 1},
					"extra": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "string"},
					},
				},
				"additionalProperties": false,
			},
		},
		Hooks: plugins.Hooks{
			Init: func(ctx context.Context, config map[string]any) error {
				return decodeConfig(config, &cfg)
			},
			ManifestGenerated: func(ctx context.Context, m plugins.Manifest) (plugins.Manifest, error) {
				clear(labels)
				set := func(key string, v any) {
					if s, ok := v.(string); ok && s != "" {
						labels[cfg.Prefix+"."+key] = s
					}
				}
				set("title", m["name"])
				set("version", m["version"])
				set("description", m["description"])
				if info, ok := m[BuildInfoKey].(map[string]any); ok {
					set("created", info["generated_at"])
					set("vendor", info["vendor"])
					set("source", info["source_url"])
				}
				for k, v := range cfg.Extra {
					labels[k] = v
				}
				return m, nil
			},
			DockerfileGenerated: func(ctx context.Context, dockerfile string) (string, error) {
				if len(labels) == 0 {
					return dockerfile, nil
				}
				if err := validation.ValidateImageLabels(labels); err != nil {
					return "", fmt.Errorf("invalid image labels: %w", err)
				}
				return insertLabels(dockerfile, labels), nil
			},
		},
	}
}

// insertLabels places LABEL lines directly after the first FROM instruction
func insertLabels(dockerfile string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var block strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&block, "LABEL %s=%s\n", k, strconv.Quote(labels[k]))
	}

	lines := strings.SplitAfter(dockerfile, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "FROM ") {
			if !strings.HasSuffix(line, "\n") {
				lines[i] = line + "\n"
			}
			return strings.Join(lines[:i+1], "") + block.String() + strings.Join(lines[i+1:], "")
		}
	}
	return block.String() + dockerfile
}
