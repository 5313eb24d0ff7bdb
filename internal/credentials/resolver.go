// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/logger"
)

// Prompter asks the user for a credential value
type Prompter interface {
	Prompt(ctx context.Context, req Requirement) (string, error)
}

// Source records where a resolved value came from
type Source string

const (
	SourceEnv    Source = "env"
	SourcePrompt Source = "prompt"
)

// Resolution holds resolved values for the lifetime of one run. Values are
// never written to the checkpoint or to generated artifacts.
type Resolution struct {
	Values   map[string]string
	Sources  map[string]Source
	Missing  []string
	Warnings []string
}

// Has reports whether name resolved to a value
func (r *Resolution) Has(name string) bool {
	_, ok := r.Values[name]
	return ok
}

// MissingCredentialsError is returned in strict mode when required credentials are unset
type MissingCredentialsError struct {
	Names []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing required credentials: %s", strings.Join(e.Names, ", "))
}

// Resolver resolves requirements from the environment, then optionally by prompting
type Resolver struct {
	lookup   func(string) (string, bool)
	prompter Prompter
	strict   bool
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLookup replaces the environment lookup
func WithLookup(lookup func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) { r.lookup = lookup }
}

// WithPrompter replaces the interactive prompter. nil disables prompting.
func WithPrompter(p Prompter) ResolverOption {
	return func(r *Resolver) { r.prompter = p }
}

// NewResolver creates a resolver. Interactive mode installs a terminal prompter.
func NewResolver(cfg config.CredentialsConfig, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup: os.LookupEnv,
		strict: cfg.Strict,
	}
	if cfg.Interactive {
		r.prompter = NewHuhPrompter()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up every requirement. Missing required credentials fail the call
// only in strict mode; otherwise they become warnings like optional ones.
func (r *Resolver) Resolve(ctx context.Context, reqs []Requirement) (*Resolution, error) {
	log := logger.GetCredentialsLogger()

	res := &Resolution{
		Values:  make(map[string]string),
		Sources: make(map[string]Source),
	}

	var strictMissing []string
	for _, req := range reqs {
		if value, ok := r.lookup(req.Name); ok && value != "" {
			res.Values[req.Name] = value
			res.Sources[req.Name] = SourceEnv
			log.Debug().Str("credential", req.Name).Msg("Resolved from environment")
			continue
		}

		if r.prompter != nil {
			value, err := r.prompter.Prompt(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("prompt for %s: %w", req.Name, err)
			}
			if value != "" {
				res.Values[req.Name] = value
				res.Sources[req.Name] = SourcePrompt
				log.Debug().Str("credential", req.Name).Msg("Resolved from prompt")
				continue
			}
		}

		res.Missing = append(res.Missing, req.Name)
		switch {
		case req.Required && r.strict:
			strictMissing = append(strictMissing, req.Name)
		case req.Required:
			res.Warnings = append(res.Warnings, fmt.Sprintf("required credential %s is not set; the server will fail to start without it", req.Name))
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("optional credential %s is not set", req.Name))
		}
	}

	log.Info().
		Int("required", len(reqs)).
		Int("resolved", len(res.Values)).
		Int("missing", len(res.Missing)).
		Msg("Credential resolution complete")

	if len(strictMissing) > 0 {
		return res, &MissingCredentialsError{Names: strictMissing}
	}
	return res, nil
}

// IsMissing reports whether err is a strict-mode missing credential failure
func IsMissing(err error) bool {
	var missing *MissingCredentialsError
	return errors.As(err, &missing)
}
