// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package modules

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/lo"
)

var validNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

var knownParamTypes = map[string]bool{
	"string": true, "number": true, "integer": true, "boolean": true,
	"object": true, "array": true, "any": true,
}

// Validator checks a module set for problems that would break the generated server
type Validator struct{}

// NewValidator creates a module validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate reports errors that make the set unusable and warnings that only
// degrade the generated manifest.
func (v *Validator) Validate(mods []Module) ValidationResult {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if len(mods) == 0 {
		result.Errors = append(result.Errors, "no modules to build: add tools or connectors")
	}

	for _, kind := range []Kind{KindTool, KindConnector} {
		names := lo.FilterMap(mods, func(m Module, _ int) (string, bool) {
			return m.Name, m.Kind == kind && !m.Disabled
		})
		for _, dup := range lo.FindDuplicates(names) {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate %s name %q", kind, dup))
		}
	}

	for _, m := range mods {
		if m.Disabled {
			continue
		}
		label := fmt.Sprintf("%s %q (%s)", m.Kind, m.Name, m.Path)

		if !validNameRegex.MatchString(m.Name) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: name must start with a letter and contain only letters, digits, '-' or '_'", label))
		}
		if !lo.Contains(lo.Values(extLanguages), m.Language) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unsupported language %q", label, m.Language))
		}
		if m.Description == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: missing description", label))
		}
		if m.Version != "" {
			if _, err := semver.NewVersion(m.Version); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: version %q is not semantic", label, m.Version))
			}
		}

		paramNames := lo.Map(m.Params, func(p Param, _ int) string { return p.Name })
		for _, dup := range lo.FindDuplicates(paramNames) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: duplicate parameter %q", label, dup))
		}
		for _, p := range m.Params {
			if !knownParamTypes[p.Type] {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: parameter %q has unknown type %q", label, p.Name, p.Type))
			}
		}

		if m.Kind == KindConnector && len(m.Methods) == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: connector exposes no methods", label))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}
