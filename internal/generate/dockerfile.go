// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strconv"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/docker/go-connections/nat"
	"github.com/samber/lo"

	"github.com/noldarim/mcpsmith/internal/modules"
	"github.com/noldarim/mcpsmith/pkg/containers/validation"
)

// DockerfileInput is everything the Dockerfile is derived from. Directory
// fields are relative to the build context root.
type DockerfileInput struct {
	Name         string
	Version      string
	Languages    []modules.Language
	BaseImages   map[string]string
	Transport    string
	Port         int
	ModulesDir   string
	OutputDir    string
	ManifestFile string
	ConfigFile   string
	Labels       map[string]string
	Env          map[string]string
	Command      []string // Overrides the per-language default
}

// Base image preference when several languages are present
var languagePriority = []modules.Language{
	modules.LanguagePython,
	modules.LanguageTypeScript,
	modules.LanguageJavaScript,
	modules.LanguageGo,
}

// Runtime entrypoints; the config path is appended
var defaultCommands = map[modules.Language][]string{
	modules.LanguagePython:     {"python", "-m", "mcp_runtime", "--config"},
	modules.LanguageTypeScript: {"npx", "mcp-runtime", "--config"},
	modules.LanguageJavaScript: {"npx", "mcp-runtime", "--config"},
	modules.LanguageGo:         {"/app/server", "--config"},
}

const dockerfileTemplate = `# syntax=docker/dockerfile:1
# Generated by mcpsmith for {{ .Name }} {{ .Version }}. Do not edit.
FROM {{ .BaseImage }}
{{- range $key, $value := .Labels }}
LABEL {{ $key }}={{ $value | quote }}
{{- end }}

WORKDIR /app
{{- if .NodeOnPython }}
RUN apt-get update && apt-get install -y --no-install-recommends nodejs npm && rm -rf /var/lib/apt/lists/*
{{- end }}

COPY {{ .ModulesDir }}/ /app/modules/
{{- if has "python" .Languages }}
RUN if [ -f /app/modules/requirements.txt ]; then pip install --no-cache-dir -r /app/modules/requirements.txt; fi
{{- end }}
{{- if or (has "javascript" .Languages) (has "typescript" .Languages) }}
RUN if [ -f /app/modules/package.json ]; then cd /app/modules && npm install --omit=dev; fi
{{- end }}
{{- if has "go" .Languages }}
RUN cd /app/modules && go build -o /app/server ./...
{{- end }}
COPY {{ .OutputDir }}/{{ .ManifestFile }} /app/{{ .ManifestFile }}
COPY {{ .OutputDir }}/{{ .ConfigFile }} /app/{{ .ConfigFile }}
{{ range $key, $value := .Env }}
ENV {{ $key }}={{ $value | quote }}
{{- end }}
{{- if .ExposePort }}

EXPOSE {{ .ExposePort }}
{{- end }}

CMD {{ .Command | toJson }}
`

var dockerfileTmpl = template.Must(template.New("Dockerfile").Funcs(sprig.TxtFuncMap()).Parse(dockerfileTemplate))

type dockerfileData struct {
	Name         string
	Version      string
	BaseImage    string
	Languages    []string
	NodeOnPython bool
	Labels       map[string]string
	Env          map[string]string
	ModulesDir   string
	OutputDir    string
	ManifestFile string
	ConfigFile   string
	ExposePort   string
	Command      []string
}

// DockerfileRenderer renders a Dockerfile from a text template
type DockerfileRenderer struct{}

// NewDockerfileRenderer creates a Dockerfile renderer
func NewDockerfileRenderer() *DockerfileRenderer {
	return &DockerfileRenderer{}
}

// Generate renders the Dockerfile. It fails on unusable input: no languages, a
// language without a base image, Go mixed with other runtimes, or an invalid port.
func (r *DockerfileRenderer) Generate(in DockerfileInput) (string, error) {
	if in.Name == "" {
		return "", errors.New("dockerfile requires a server name")
	}

	langs := lo.Uniq(in.Languages)
	if len(langs) == 0 {
		return "", errors.New("dockerfile requires at least one module language")
	}
	if lo.Contains(langs, modules.LanguageGo) && len(langs) > 1 {
		return "", errors.New("go modules cannot share an image with other languages")
	}

	primary, _ := lo.Find(languagePriority, func(l modules.Language) bool { return lo.Contains(langs, l) })
	if primary == "" {
		return "", fmt.Errorf("no supported language in %v", langs)
	}
	baseImage := in.BaseImages[string(primary)]
	if baseImage == "" {
		return "", fmt.Errorf("no base image configured for %s", primary)
	}

	if err := validation.ValidateImageLabels(in.Labels); err != nil {
		return "", err
	}

	env := map[string]string{
		"MCP_SERVER_NAME": in.Name,
		"MCP_TRANSPORT":   in.Transport,
	}
	for k, v := range in.Env {
		env[k] = v
	}

	data := dockerfileData{
		Name:         in.Name,
		Version:      in.Version,
		BaseImage:    baseImage,
		Languages:    lo.Map(langs, func(l modules.Language, _ int) string { return string(l) }),
		NodeOnPython: primary == modules.LanguagePython && (lo.Contains(langs, modules.LanguageJavaScript) || lo.Contains(langs, modules.LanguageTypeScript)),
		Labels:       in.Labels,
		ModulesDir:   path.Clean(orDefault(in.ModulesDir, ".")),
		OutputDir:    path.Clean(orDefault(in.OutputDir, ".")),
		ManifestFile: orDefault(in.ManifestFile, "manifest.json"),
		ConfigFile:   orDefault(in.ConfigFile, "mcp-config.yaml"),
		Command:      in.Command,
	}

	if in.Transport == "http" {
		if in.Port <= 0 {
			return "", fmt.Errorf("invalid port %d for http transport", in.Port)
		}
		port, err := nat.NewPort("tcp", strconv.Itoa(in.Port))
		if err != nil {
			return "", fmt.Errorf("invalid port %d: %w", in.Port, err)
		}
		data.ExposePort = string(port)
		env["MCP_PORT"] = port.Port()
	}

	if err := validation.ValidateEnvironmentVariables(env); err != nil {
		return "", err
	}
	data.Env = env

	if len(data.Command) == 0 {
		data.Command = append(append([]string{}, defaultCommands[primary]...), "/app/"+data.ConfigFile)
	}

	var buf bytes.Buffer
	if err := dockerfileTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buf.String(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
