// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/distribution/reference"
	"github.com/samber/lo"
)

// validLabelKeyRegex matches valid Docker label keys
// Docker label keys should follow reverse-DNS format
var validLabelKeyRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-\.]*[a-z0-9])?(\.[a-z0-9]([a-z0-9\-\.]*[a-z0-9])?)*$`)

// validEnvVarNameRegex matches valid environment variable names
var validEnvVarNameRegex = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// validBuildArgRegex matches Dockerfile ARG names, which may be mixed case
var validBuildArgRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// ValidateImageReference checks that ref is a well-formed name[:tag] reference.
// Digest references are rejected because they cannot be used as tag targets.
func ValidateImageReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return ValidationError{Field: "image reference", Message: "must not be empty"}
	}

	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return ValidationError{
			Field:   fmt.Sprintf("image reference '%s'", ref),
			Message: err.Error(),
		}
	}
	if _, ok := named.(reference.Digested); ok {
		return ValidationError{
			Field:   fmt.Sprintf("image reference '%s'", ref),
			Message: "digest references cannot be tagged or pushed by name",
		}
	}
	return nil
}

// QualifyReference rewrites ref to live under registryURL unless it already does.
func QualifyReference(ref, registryURL string) string {
	registryURL = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(registryURL, "https://"), "http://"), "/")
	if registryURL == "" || strings.HasPrefix(ref, registryURL+"/") {
		return ref
	}
	return registryURL + "/" + ref
}

// ValidateImageLabels validates a map of image labels
func ValidateImageLabels(labels map[string]string) error {
	var errors ValidationErrors

	for _, key := range sortedKeys(labels) {
		value := labels[key]

		if !validLabelKeyRegex.MatchString(key) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("label key '%s'", key),
				Message: "must be a valid DNS subdomain (lowercase letters, numbers, dots, and hyphens only)",
			})
			continue
		}

		for _, segment := range strings.Split(key, ".") {
			if len(segment) > 63 {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("label key '%s'", key),
					Message: "segment exceeds 63 character limit",
				})
				break
			}
		}

		if err := validateStringValue(value, fmt.Sprintf("label value for key '%s'", key)); err != nil {
			errors = append(errors, *err)
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// ValidateBuildArgs validates build-time ARG names and values
func ValidateBuildArgs(args map[string]string) error {
	var errors ValidationErrors

	for _, name := range sortedKeys(args) {
		if !validBuildArgRegex.MatchString(name) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("build arg '%s'", name),
				Message: "must start with a letter or underscore and contain only letters, numbers, and underscores",
			})
			continue
		}
		if err := validateStringValue(args[name], fmt.Sprintf("build arg value for '%s'", name)); err != nil {
			errors = append(errors, *err)
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// ValidateEnvironmentVariables validates ENV entries baked into an image
func ValidateEnvironmentVariables(env map[string]string) error {
	var errors ValidationErrors

	for _, name := range sortedKeys(env) {
		if !validEnvVarNameRegex.MatchString(name) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("environment variable '%s'", name),
				Message: "must start with a letter or underscore and contain only uppercase letters, numbers, and underscores",
			})
			continue
		}

		if isReservedEnvVar(name) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("environment variable '%s'", name),
				Message: "is a reserved environment variable name",
			})
			continue
		}

		if err := validateStringValue(env[name], fmt.Sprintf("environment variable value for '%s'", name)); err != nil {
			errors = append(errors, *err)
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// validateStringValue performs common string validation
func validateStringValue(value, fieldName string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   fieldName,
			Message: "contains null bytes",
		}
	}

	for _, r := range value {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Allow tab, LF, CR
			return &ValidationError{
				Field:   fieldName,
				Message: "contains control characters",
			}
		}
	}

	if len(value) > 4096 {
		return &ValidationError{
			Field:   fieldName,
			Message: "exceeds maximum length of 4096 characters",
		}
	}

	return nil
}

// isReservedEnvVar checks if an environment variable name is reserved
func isReservedEnvVar(name string) bool {
	reserved := map[string]bool{
		"PATH":     true,
		"HOME":     true,
		"USER":     true,
		"SHELL":    true,
		"PWD":      true,
		"HOSTNAME": true,
		"TERM":     true,
		"LANG":     true,
		"LC_ALL":   true,
		"TZ":       true,
	}
	return reserved[name]
}

// sortedKeys keeps error ordering stable across runs
func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
