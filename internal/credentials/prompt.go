// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// HuhPrompter prompts on the terminal with a single-field form per credential
type HuhPrompter struct{}

// NewHuhPrompter creates a terminal prompter
func NewHuhPrompter() *HuhPrompter {
	return &HuhPrompter{}
}

// Prompt asks for req. Secrets are masked; URLs are echoed.
func (p *HuhPrompter) Prompt(ctx context.Context, req Requirement) (string, error) {
	var value string

	description := req.Description
	if !req.Required {
		description = strings.TrimSpace(description + " (optional, leave empty to skip)")
	}

	input := huh.NewInput().
		Key(req.Name).
		Title(req.Name).
		Description(description).
		Value(&value)

	if req.Type != TypeURL {
		input = input.EchoMode(huh.EchoModePassword)
	}
	if req.Required {
		input = input.Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", req.Name)
			}
			return nil
		})
	}

	form := huh.NewForm(huh.NewGroup(input)).WithTheme(huh.ThemeCharm())
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}
