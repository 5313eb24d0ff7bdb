// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to the log.levels keys in mcpsmith.yaml.

// GetPipelineLogger returns a logger for the build orchestrator
func GetPipelineLogger() zerolog.Logger {
	return GetLogger("pipeline")
}

// GetPluginLogger returns a logger for plugin loading and hooks
func GetPluginLogger() zerolog.Logger {
	return GetLogger("plugins")
}

// GetCheckpointLogger returns a logger for checkpoint persistence
func GetCheckpointLogger() zerolog.Logger {
	return GetLogger("checkpoint")
}

// GetModulesLogger returns a logger for module discovery and validation
func GetModulesLogger() zerolog.Logger {
	return GetLogger("modules")
}

// GetCredentialsLogger returns a logger for credential resolution
func GetCredentialsLogger() zerolog.Logger {
	return GetLogger("credentials")
}

// GetContainerLogger returns a logger for container operations
func GetContainerLogger() zerolog.Logger {
	return GetLogger("container")
}

// GetCLILogger returns a logger for command handlers
func GetCLILogger() zerolog.Logger {
	return GetLogger("cli")
}
