// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// ImageStatus represents the last known state of a built image
type ImageStatus string

const (
	StatusBuilt   ImageStatus = "built"
	StatusTagged  ImageStatus = "tagged"
	StatusPushed  ImageStatus = "pushed"
	StatusRemoved ImageStatus = "removed"
	StatusFailed  ImageStatus = "failed"
)

// Image is the subset of engine image metadata the build pipeline needs
type Image struct {
	ID        string            `json:"id"`
	Tags      []string          `json:"tags"`
	Size      int64             `json:"size"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// BuildOptions holds configuration for building an image from a local context directory
type BuildOptions struct {
	ContextDir string            `json:"context_dir"`
	Dockerfile string            `json:"dockerfile"` // Relative to ContextDir
	Tags       []string          `json:"tags"`
	Labels     map[string]string `json:"labels,omitempty"`
	BuildArgs  map[string]string `json:"build_args,omitempty"`
	NoCache    bool              `json:"no_cache,omitempty"`
	Exclude    []string          `json:"exclude,omitempty"` // Top-level entries left out of the context
}

// TagFailure records a tag that could not be applied
type TagFailure struct {
	Tag   string `json:"tag"`
	Error string `json:"error"`
}

// TagResult reports which tags were applied to an image
type TagResult struct {
	Applied []string     `json:"applied"`
	Failed  []TagFailure `json:"failed"`
}

// RegistryAuth holds credentials for pushing to a registry
type RegistryAuth struct {
	Username      string `json:"username"`
	Password      string `json:"-"`
	ServerAddress string `json:"server_address"`
}
