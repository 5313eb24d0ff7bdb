// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"time"
)

// EventType defines the type of image event
type EventType string

const (
	ImageBuildStarted EventType = "image.build_started"
	ImageBuilt        EventType = "image.built"
	ImageTagged       EventType = "image.tagged"
	ImagePushed       EventType = "image.pushed"
	ImageRemoved      EventType = "image.removed"
	ImageFailed       EventType = "image.failed"
)

// Event represents an image lifecycle event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// ImageBuildStartedEvent is published before the build context is sent
type ImageBuildStartedEvent struct {
	Tag        string    `json:"tag"`
	ContextDir string    `json:"context_dir"`
	Dockerfile string    `json:"dockerfile"`
	Timestamp  time.Time `json:"timestamp"`
}

// ImageBuiltEvent is published when a build produced an image
type ImageBuiltEvent struct {
	ImageID   string        `json:"image_id"`
	Tag       string        `json:"tag"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ImageTaggedEvent is published for every applied tag
type ImageTaggedEvent struct {
	ImageID   string    `json:"image_id"`
	Tag       string    `json:"tag"`
	Timestamp time.Time `json:"timestamp"`
}

// ImagePushedEvent is published when a push completed
type ImagePushedEvent struct {
	Ref       string    `json:"ref"`
	Registry  string    `json:"registry"`
	Attempts  uint      `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageRemovedEvent is published when an image is removed
type ImageRemovedEvent struct {
	ImageID   string    `json:"image_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageFailedEvent is published when an image operation fails
type ImageFailedEvent struct {
	Ref       string    `json:"ref"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildEventType classifies a build progress event
type BuildEventType string

const (
	BuildStep   BuildEventType = "step"
	BuildOutput BuildEventType = "output"
	BuildError  BuildEventType = "error"
)

// BuildEvent is a structured progress notification emitted while an image builds.
// Step and Total are set only for BuildStep events.
type BuildEvent struct {
	Type    BuildEventType `json:"type"`
	Step    int            `json:"step,omitempty"`
	Total   int            `json:"total,omitempty"`
	Message string         `json:"message"`
}

// Publisher defines the interface for publishing image events
type Publisher interface {
	Publish(event Event) error
}
