// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validTool(name string) Module {
	return Module{
		Name:        name,
		Kind:        KindTool,
		Language:    LanguagePython,
		Path:        "tools/" + name + ".py",
		Description: "does things",
		Params:      []Param{{Name: "text", Type: "string"}},
	}
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name           string
		mods           []Module
		valid          bool
		errorContains  string
		warningContain string
	}{
		{
			name:  "valid set",
			mods:  []Module{validTool("summarizer"), validTool("translator")},
			valid: true,
		},
		{
			name:          "empty set",
			mods:          nil,
			errorContains: "no modules to build",
		},
		{
			name:          "duplicate tool names",
			mods:          []Module{validTool("summarizer"), validTool("summarizer")},
			errorContains: `duplicate tool name "summarizer"`,
		},
		{
			name: "same name across kinds is allowed",
			mods: []Module{validTool("db"), func() Module {
				m := validTool("db")
				m.Kind = KindConnector
				m.Methods = []string{"query"}
				return m
			}()},
			valid: true,
		},
		{
			name: "disabled duplicates are ignored",
			mods: []Module{validTool("summarizer"), func() Module {
				m := validTool("summarizer")
				m.Disabled = true
				return m
			}()},
			valid: true,
		},
		{
			name:          "invalid name",
			mods:          []Module{validTool("9lives")},
			errorContains: "name must start with a letter",
		},
		{
			name: "unsupported language",
			mods: []Module{func() Module {
				m := validTool("x")
				m.Language = "ruby"
				return m
			}()},
			errorContains: `unsupported language "ruby"`,
		},
		{
			name: "duplicate params",
			mods: []Module{func() Module {
				m := validTool("x")
				m.Params = append(m.Params, Param{Name: "text", Type: "string"})
				return m
			}()},
			errorContains: `duplicate parameter "text"`,
		},
		{
			name: "missing description warns",
			mods: []Module{func() Module {
				m := validTool("x")
				m.Description = ""
				return m
			}()},
			valid:          true,
			warningContain: "missing description",
		},
		{
			name: "non-semantic version warns",
			mods: []Module{func() Module {
				m := validTool("x")
				m.Version = "latest"
				return m
			}()},
			valid:          true,
			warningContain: "is not semantic",
		},
		{
			name: "unknown param type warns",
			mods: []Module{func() Module {
				m := validTool("x")
				m.Params = []Param{{Name: "n", Type: "int64"}}
				return m
			}()},
			valid:          true,
			warningContain: `unknown type "int64"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewValidator().Validate(tt.mods)
			assert.Equal(t, tt.valid, result.Valid, "errors: %v", result.Errors)
			if tt.errorContains != "" {
				assert.Contains(t, joinAll(result.Errors), tt.errorContains)
			}
			if tt.warningContain != "" {
				assert.Contains(t, joinAll(result.Warnings), tt.warningContain)
			}
		})
	}
}

func joinAll(items []string) string {
	out := ""
	for _, s := range items {
		out += s + "\n"
	}
	return out
}
