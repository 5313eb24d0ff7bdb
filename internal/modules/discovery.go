// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package modules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noldarim/mcpsmith/internal/logger"
)

const (
	ToolsDir      = "tools"
	ConnectorsDir = "connectors"
)

var (
	commentLeader  = regexp.MustCompile(`^\s*(?://+|#+|/\*+|\*+|"""|''')?\s*`)
	tagLine        = regexp.MustCompile(`^@(tool|connector|description|param|returns|credential|version)\b\s*(.*)$`)
	metadataAssign = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const\s+|let\s+|var\s+)?metadata\s*(?::\s*\w+\s*)?=\s*\{`)
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
	lineComment    = regexp.MustCompile(`(?m)^\s*//.*$`)
)

// skipDirs are never descended into
var skipDirs = map[string]bool{
	"__pycache__":  true,
	"__tests__":    true,
	"node_modules": true,
	"vendor":       true,
	"testdata":     true,
}

// FileDiscoverer finds modules under <base>/tools and <base>/connectors by
// reading comment tags and a top-level metadata literal from each source file.
type FileDiscoverer struct{}

// NewFileDiscoverer creates a discoverer reading from the local filesystem
func NewFileDiscoverer() *FileDiscoverer {
	return &FileDiscoverer{}
}

// Discover walks basePath. A missing base path is an error; missing tools or
// connectors directories and unreadable files are reported as warnings.
func (d *FileDiscoverer) Discover(ctx context.Context, basePath string) (*Discovery, error) {
	log := logger.GetModulesLogger()

	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("modules directory %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("modules path %s is not a directory", basePath)
	}

	result := &Discovery{}
	for _, dir := range []struct {
		name string
		kind Kind
	}{{ToolsDir, KindTool}, {ConnectorsDir, KindConnector}} {
		root := filepath.Join(basePath, dir.name)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			log.Debug().Str("dir", root).Msg("No module directory")
			continue
		}

		if err := d.walk(ctx, basePath, root, dir.kind, result); err != nil {
			return nil, err
		}
	}

	if len(result.Modules) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no tools or connectors found under %s", basePath))
	}

	log.Info().
		Int("tools", len(result.Tools())).
		Int("connectors", len(result.Connectors())).
		Int("warnings", len(result.Warnings)).
		Msg("Module discovery complete")

	return result, nil
}

func (d *FileDiscoverer) walk(ctx context.Context, basePath, root string, kind Kind, result *Discovery) error {
	log := logger.GetModulesLogger()

	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("cannot read %s: %v", path, err))
			if entry != nil && entry.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		name := entry.Name()
		if entry.IsDir() {
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		lang, ok := LanguageForPath(name)
		if !ok || isIgnoredFile(name) {
			return nil
		}

		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			rel = path
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable module file")
			result.Warnings = append(result.Warnings, fmt.Sprintf("cannot read %s: %v", rel, err))
			return nil
		}

		mod, warnings := ParseModule(string(content), filepath.ToSlash(rel), kind, lang)
		result.Warnings = append(result.Warnings, warnings...)
		if mod != nil {
			log.Debug().Str("name", mod.Name).Str("kind", string(mod.Kind)).Str("path", mod.Path).Msg("Discovered module")
			result.Modules = append(result.Modules, *mod)
		}
		return nil
	})
}

func isIgnoredFile(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "test_") {
		return true
	}
	for _, suffix := range []string{"_test.go", "_test.py", ".test.js", ".test.ts", ".spec.js", ".spec.ts", ".d.ts"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// ParseModule extracts a module from source text. kind is the default implied
// by the containing directory; an @tool or @connector tag overrides it. Files with
// neither tags nor a metadata literal yield nil and a warning.
func ParseModule(content, relPath string, kind Kind, lang Language) (*Module, []string) {
	var warnings []string

	mod := &Module{
		Kind:     kind,
		Language: lang,
		Path:     relPath,
	}

	tagged := false
	for _, raw := range strings.Split(content, "\n") {
		line := commentLeader.ReplaceAllString(raw, "")
		m := tagLine.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
		if m == nil {
			continue
		}
		tagged = true
		value := strings.TrimSpace(m[2])

		switch m[1] {
		case "tool":
			mod.Kind = KindTool
			mod.Name = firstField(value)
		case "connector":
			mod.Kind = KindConnector
			mod.Name = firstField(value)
		case "description":
			mod.Description = value
		case "version":
			mod.Version = firstField(value)
		case "returns":
			mod.Returns = value
		case "param":
			fields := strings.Fields(value)
			if len(fields) < 2 {
				warnings = append(warnings, fmt.Sprintf("%s: malformed @param %q", relPath, value))
				continue
			}
			mod.Params = append(mod.Params, Param{
				Name:        fields[0],
				Type:        fields[1],
				Description: strings.Join(fields[2:], " "),
			})
		case "credential":
			if ref, ok := parseCredentialTag(value); ok {
				mod.Credentials = append(mod.Credentials, ref)
			} else {
				warnings = append(warnings, fmt.Sprintf("%s: malformed @credential %q", relPath, value))
			}
		}
	}

	meta, err := extractMetadata(content)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("%s: unparseable metadata literal: %v", relPath, err))
	}
	if meta != nil {
		mod.Metadata = meta
		applyMetadata(mod, meta)
	}

	if !tagged && meta == nil {
		warnings = append(warnings, fmt.Sprintf("%s: no module tags or metadata, skipped", relPath))
		return nil, warnings
	}

	if mod.Name == "" {
		base := filepath.Base(relPath)
		mod.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return mod, warnings
}

func applyMetadata(mod *Module, meta map[string]any) {
	if mod.Name == "" {
		mod.Name = stringValue(meta["name"])
	}
	if mod.Description == "" {
		mod.Description = stringValue(meta["description"])
	}
	if mod.Version == "" {
		mod.Version = stringValue(meta["version"])
	}
	if mod.Kind == KindConnector {
		mod.ConnectorType = stringValue(meta["type"])
		if methods, ok := meta["methods"].([]any); ok {
			for _, method := range methods {
				if s := stringValue(method); s != "" {
					mod.Methods = append(mod.Methods, s)
				}
			}
		}
	}
}

// parseCredentialTag parses "NAME [optional|required] description"
func parseCredentialTag(value string) (CredentialRef, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return CredentialRef{}, false
	}

	ref := CredentialRef{Name: fields[0], Required: true}
	rest := fields[1:]
	if len(rest) > 0 {
		switch strings.ToLower(rest[0]) {
		case "optional":
			ref.Required = false
			rest = rest[1:]
		case "required":
			rest = rest[1:]
		}
	}
	ref.Description = strings.Join(rest, " ")
	return ref, true
}

// extractMetadata finds a top-level `metadata = {...}` literal and decodes it.
// Python dicts and JS object literals are close enough to YAML flow mappings
// once trailing commas and line comments are removed.
func extractMetadata(content string) (map[string]any, error) {
	loc := metadataAssign.FindStringIndex(content)
	if loc == nil {
		return nil, nil
	}

	start := loc[1] - 1
	end := matchBrace(content, start)
	if end < 0 {
		return nil, fmt.Errorf("unterminated literal")
	}

	literal := content[start : end+1]
	literal = lineComment.ReplaceAllString(literal, "")
	literal = trailingComma.ReplaceAllString(literal, "$1")

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(literal), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// matchBrace returns the index of the brace closing the one at open, skipping quoted strings
func matchBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
