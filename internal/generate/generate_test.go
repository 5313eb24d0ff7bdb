// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/noldarim/mcpsmith/internal/credentials"
	"github.com/noldarim/mcpsmith/internal/modules"
)

var baseImages = map[string]string{
	"python":     "python:3.12-slim",
	"javascript": "node:20-slim",
	"typescript": "node:20-slim",
	"go":         "golang:1.24-alpine",
}

func sampleModules() []modules.Module {
	return []modules.Module{
		{
			Name:        "summarizer",
			Kind:        modules.KindTool,
			Language:    modules.LanguagePython,
			Path:        "tools/summarizer.py",
			Description: "Summarizes text",
			Params:      []modules.Param{{Name: "text", Type: "string"}},
			Returns:     "string",
		},
		{
			Name:     "hidden",
			Kind:     modules.KindTool,
			Language: modules.LanguagePython,
			Path:     "tools/hidden.py",
			Disabled: true,
		},
		{
			Name:          "database-connector",
			Kind:          modules.KindConnector,
			Language:      modules.LanguagePython,
			Path:          "connectors/database-connector.py",
			ConnectorType: "database",
			Methods:       []string{"query", "insert"},
			Version:       "1.0.0",
		},
	}
}

func TestManifestBuilder_Generate(t *testing.T) {
	manifest, err := NewManifestBuilder().Generate(ManifestInput{
		Name:        "weather",
		Version:     "1.0.0",
		Transport:   "stdio",
		Modules:     sampleModules(),
		Credentials: []credentials.Requirement{{Name: "DATABASE_URL", Type: credentials.TypeURL, Required: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, "weather", manifest["name"])
	assert.Equal(t, ManifestSchemaVersion, manifest["schema_version"])

	tools := manifest["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "summarizer", tool["name"])
	assert.Equal(t, "string", tool["returns"])

	connectors := manifest["connectors"].([]any)
	require.Len(t, connectors, 1)
	assert.Equal(t, []any{"query", "insert"}, connectors[0].(map[string]any)["methods"])

	creds := manifest["credentials"].([]any)
	require.Len(t, creds, 1)

	data, err := RenderManifest(manifest)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1.0.0", decoded["version"])
}

func TestManifestBuilder_RequiresName(t *testing.T) {
	_, err := NewManifestBuilder().Generate(ManifestInput{})
	assert.EqualError(t, err, "manifest requires a server name")
}

func TestConfigRenderer_Generate(t *testing.T) {
	out, err := NewConfigRenderer().Generate(ConfigInput{
		Name:         "weather",
		Version:      "1.0.0",
		Transport:    "http",
		Port:         9090,
		ManifestFile: "manifest.json",
		Modules:      sampleModules(),
		Credentials:  []credentials.Requirement{{Name: "DATABASE_URL", Type: credentials.TypeURL, Required: true}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Generated by mcpsmith"))

	var parsed struct {
		Server struct {
			Name      string `yaml:"name"`
			Transport string `yaml:"transport"`
			Port      int    `yaml:"port"`
		} `yaml:"server"`
		Tools []struct {
			Name string `yaml:"name"`
		} `yaml:"tools"`
		Connectors []struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
		} `yaml:"connectors"`
		Credentials []struct {
			Env      string `yaml:"env"`
			Required bool   `yaml:"required"`
		} `yaml:"credentials"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))

	assert.Equal(t, "weather", parsed.Server.Name)
	assert.Equal(t, 9090, parsed.Server.Port)
	require.Len(t, parsed.Tools, 1)
	assert.Equal(t, "summarizer", parsed.Tools[0].Name)
	require.Len(t, parsed.Connectors, 1)
	assert.Equal(t, "database", parsed.Connectors[0].Type)
	require.Len(t, parsed.Credentials, 1)
	assert.Equal(t, "DATABASE_URL", parsed.Credentials[0].Env)
	assert.NotContains(t, out, "postgres://", "values never appear in config")
}

func TestConfigRenderer_StdioOmitsPort(t *testing.T) {
	out, err := NewConfigRenderer().Generate(ConfigInput{Name: "weather", Transport: "stdio", Port: 8080})
	require.NoError(t, err)
	var parsed struct {
		Server map[string]any `yaml:"server"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "stdio", parsed.Server["transport"])
	assert.NotContains(t, parsed.Server, "port")

	_, err = NewConfigRenderer().Generate(ConfigInput{Name: "weather", Transport: "grpc"})
	assert.EqualError(t, err, `unsupported transport "grpc"`)
}

func TestDockerfileRenderer_Python(t *testing.T) {
	out, err := NewDockerfileRenderer().Generate(DockerfileInput{
		Name:         "weather",
		Version:      "1.0.0",
		Languages:    []modules.Language{modules.LanguagePython, modules.LanguagePython},
		BaseImages:   baseImages,
		Transport:    "http",
		Port:         8080,
		ModulesDir:   "./",
		OutputDir:    "dist",
		ManifestFile: "manifest.json",
		ConfigFile:   "mcp-config.yaml",
		Labels:       map[string]string{"org.opencontainers.image.title": "weather"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "FROM python:3.12-slim\nLABEL org.opencontainers.image.title=\"weather\"\n")
	assert.Contains(t, out, "COPY ./ /app/modules/\n")
	assert.Contains(t, out, "pip install --no-cache-dir")
	assert.NotContains(t, out, "npm install")
	assert.Contains(t, out, "COPY dist/manifest.json /app/manifest.json\n")
	assert.Contains(t, out, "ENV MCP_PORT=\"8080\"\n")
	assert.Contains(t, out, "ENV MCP_SERVER_NAME=\"weather\"\n")
	assert.Contains(t, out, "EXPOSE 8080/tcp\n")
	assert.Contains(t, out, `CMD ["python","-m","mcp_runtime","--config","/app/mcp-config.yaml"]`)
}

func TestDockerfileRenderer_MixedNodeOnPython(t *testing.T) {
	out, err := NewDockerfileRenderer().Generate(DockerfileInput{
		Name:       "mixed",
		Languages:  []modules.Language{modules.LanguageTypeScript, modules.LanguagePython},
		BaseImages: baseImages,
		Transport:  "stdio",
		Command:    []string{"mcp-serve"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "FROM python:3.12-slim\n")
	assert.Contains(t, out, "apt-get install -y --no-install-recommends nodejs npm")
	assert.Contains(t, out, "npm install --omit=dev")
	assert.NotContains(t, out, "EXPOSE")
	assert.Contains(t, out, `CMD ["mcp-serve"]`)
}

func TestDockerfileRenderer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   DockerfileInput
		wantErr string
	}{
		{
			name:    "no name",
			input:   DockerfileInput{},
			wantErr: "requires a server name",
		},
		{
			name:    "no languages",
			input:   DockerfileInput{Name: "x"},
			wantErr: "at least one module language",
		},
		{
			name:    "go mixed",
			input:   DockerfileInput{Name: "x", Languages: []modules.Language{modules.LanguageGo, modules.LanguagePython}, BaseImages: baseImages},
			wantErr: "cannot share an image",
		},
		{
			name:    "missing base image",
			input:   DockerfileInput{Name: "x", Languages: []modules.Language{modules.LanguageJavaScript}},
			wantErr: "no base image configured for javascript",
		},
		{
			name:    "port out of range",
			input:   DockerfileInput{Name: "x", Languages: []modules.Language{modules.LanguagePython}, BaseImages: baseImages, Transport: "http", Port: 70000},
			wantErr: "invalid port 70000",
		},
		{
			name: "reserved env",
			input: DockerfileInput{Name: "x", Languages: []modules.Language{modules.LanguagePython}, BaseImages: baseImages,
				Env: map[string]string{"PATH": "/bin"}},
			wantErr: "reserved environment variable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDockerfileRenderer().Generate(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
