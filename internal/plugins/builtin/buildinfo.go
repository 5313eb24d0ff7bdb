// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package builtin

import (
	"context"
	"time"

	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/internal/plugins"
)

// BuildInfoKey is the manifest key the buildinfo plugin writes
const BuildInfoKey = "build"

type buildInfoConfig struct {
	Vendor    string `mapstructure:"vendor"`
	SourceURL string `mapstructure:"source_url"`
}

// NewBuildInfo stamps the manifest with generator and build metadata
func NewBuildInfo(now func() time.Time) *plugins.Plugin {
	var cfg buildInfoConfig

	return &plugins.Plugin{
		Meta: plugins.Meta{
			Name:        BuildInfoName,
			Version:     "1.0.0",
			Description: "Adds build metadata to the generated manifest",
			Author:      "mcpsmith",
			ConfigSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"vendor":     map[string]any{"type": "string"},
					"source_url": map[string]any{"type": "string"},
				},
				"additionalProperties": false,
			},
		},
		Hooks: plugins.Hooks{
			Init: func(ctx context.Context, config map[string]any) error {
				return decodeConfig(config, &cfg)
			},
			ManifestGenerated: func(ctx context.Context, m plugins.Manifest) (plugins.Manifest, error) {
				info := map[string]any{
					"generator":    "mcpsmith",
					"generated_at": now().UTC().Format(time.RFC3339),
				}
				if cfg.Vendor != "" {
					info["vendor"] = cfg.Vendor
				}
				if cfg.SourceURL != "" {
					info["source_url"] = cfg.SourceURL
				}
				m[BuildInfoKey] = info
				return m, nil
			},
			AfterBuild: func(ctx context.Context, bc plugins.BuildContext) error {
				log := logger.GetPluginLogger()
				log.Info().
					Str("plugin", BuildInfoName).
					Str("run_id", bc.RunID).
					Str("image_id", bc.ImageID).
					Str("tag", bc.ImageTag).
					Msg("Image built")
				return nil
			},
		},
	}
}
