// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package modules

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Kind distinguishes tools from connectors
type Kind string

const (
	KindTool      Kind = "tool"
	KindConnector Kind = "connector"
)

// Language is the source language of a module
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageGo         Language = "go"
)

var extLanguages = map[string]Language{
	".py": LanguagePython,
	".js": LanguageJavaScript,
	".ts": LanguageTypeScript,
	".go": LanguageGo,
}

// LanguageForPath maps a file extension to a supported language
func LanguageForPath(path string) (Language, bool) {
	lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Param describes one tool input
type Param struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CredentialRef is a credential declared by a module through an @credential tag
type CredentialRef struct {
	Name        string
	Required    bool
	Description string
}

// Module is a discovered tool or connector
type Module struct {
	Name          string
	Kind          Kind
	Language      Language
	Path          string // Relative to the discovery base path
	Description   string
	Version       string
	Params        []Param
	Returns       string
	ConnectorType string   // Connectors only, e.g. "database"
	Methods       []string // Connectors only
	Credentials   []CredentialRef
	Metadata      map[string]any
	Disabled      bool // Set by on-tool-loaded hooks
}

// Discovery is the outcome of one discovery pass
type Discovery struct {
	Modules  []Module
	Warnings []string
}

// Tools returns the tool modules in discovery order
func (d *Discovery) Tools() []Module {
	return d.byKind(KindTool)
}

// Connectors returns the connector modules in discovery order
func (d *Discovery) Connectors() []Module {
	return d.byKind(KindConnector)
}

func (d *Discovery) byKind(kind Kind) []Module {
	return lo.Filter(d.Modules, func(m Module, _ int) bool { return m.Kind == kind })
}

// Names returns module names in discovery order
func Names(mods []Module) []string {
	return lo.Map(mods, func(m Module, _ int) string { return m.Name })
}

// ValidationResult is the outcome of validating a module set
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}
