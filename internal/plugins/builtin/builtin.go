// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package builtin holds the plugins compiled into the mcpsmith binary.
package builtin

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/noldarim/mcpsmith/internal/plugins"
)

const (
	BuildInfoName    = "buildinfo"
	DockerLabelsName = "dockerlabels"
	ToolFilterName   = "toolfilter"
)

// Catalog returns a catalog holding every built-in plugin
func Catalog() *plugins.Catalog {
	return Register(plugins.NewCatalog(), time.Now)
}

// Register adds the built-in plugins to c. now stamps build metadata.
func Register(c *plugins.Catalog, now func() time.Time) *plugins.Catalog {
	return c.
		Add(BuildInfoName, func() *plugins.Plugin { return NewBuildInfo(now) }).
		Add(DockerLabelsName, NewDockerLabels).
		Add(ToolFilterName, NewToolFilter)
}

// decodeConfig decodes a resolved plugin configuration into out
func decodeConfig(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid plugin config: %w", err)
	}
	return nil
}
