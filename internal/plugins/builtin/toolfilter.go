// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package builtin

import (
	"context"
	"fmt"
	"path"

	"github.com/samber/lo"

	"github.com/noldarim/mcpsmith/internal/plugins"
)

type toolFilterConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// NewToolFilter drops discovered tools by name pattern. A tool is kept when it
// matches an include pattern (or none are set) and no exclude pattern.
func NewToolFilter() *plugins.Plugin {
	var cfg toolFilterConfig

	matchAny := func(patterns []string, name string) bool {
		return lo.SomeBy(patterns, func(p string) bool {
			ok, _ := path.Match(p, name)
			return ok
		})
	}

	return &plugins.Plugin{
		Meta: plugins.Meta{
			Name:        ToolFilterName,
			Version:     "1.0.0",
			Description: "Filters discovered tools by name",
			Author:      "mcpsmith",
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"include": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"exclude": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"additionalProperties": false,
			},
		},
		Hooks: plugins.Hooks{
			Init: func(ctx context.Context, config map[string]any) error {
				if err := decodeConfig(config, &cfg); err != nil {
					return err
				}
				for _, p := range lo.Flatten([][]string{cfg.Include, cfg.Exclude}) {
					if _, err := path.Match(p, ""); err != nil {
						return fmt.Errorf("invalid pattern %q: %w", p, err)
					}
				}
				return nil
			},
			ToolLoaded: func(ctx context.Context, tc plugins.ToolContext) (plugins.GateResult[plugins.ToolContext], error) {
				name := tc.Module.Name
				keep := (len(cfg.Include) == 0 || matchAny(cfg.Include, name)) && !matchAny(cfg.Exclude, name)
				if keep {
					return plugins.Continue[plugins.ToolContext](), nil
				}
				tc.Disabled = true
				return plugins.Replace(tc), nil
			},
		},
	}
}
