// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"time"
)

// StageStatus represents the status of a single stage
type StageStatus int

const (
	StageStatusPending StageStatus = iota
	StageStatusRunning
	StageStatusCompleted
	StageStatusFailed
	StageStatusSkipped // Dry run, nothing to do, or restored from a checkpoint
)

func (s StageStatus) String() string {
	switch s {
	case StageStatusPending:
		return "pending"
	case StageStatusRunning:
		return "running"
	case StageStatusCompleted:
		return "completed"
	case StageStatusFailed:
		return "failed"
	case StageStatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON output
func (s StageStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StageName identifies one of the fixed pipeline stages
type StageName string

const (
	StageLoadModules        StageName = "load-modules"
	StageValidate           StageName = "validate"
	StageCollectCredentials StageName = "collect-credentials"
	StageGenerateManifest   StageName = "generate-manifest"
	StageGenerateConfig     StageName = "generate-config"
	StageGenerateDockerfile StageName = "generate-dockerfile"
	StageBuildImage         StageName = "build-image"
	StageTagPush            StageName = "tag-push"
)

// StageNames lists the stages in execution order
var StageNames = []StageName{
	StageLoadModules,
	StageValidate,
	StageCollectCredentials,
	StageGenerateManifest,
	StageGenerateConfig,
	StageGenerateDockerfile,
	StageBuildImage,
	StageTagPush,
}

// Stage is one unit of orchestrated work. Index is 1-based.
type Stage struct {
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Name        StageName     `json:"name"`
	Status      StageStatus   `json:"status"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func newStages() []*Stage {
	stages := make([]*Stage, len(StageNames))
	for i, name := range StageNames {
		stages[i] = &Stage{
			Index:  i + 1,
			Total:  len(StageNames),
			Name:   name,
			Status: StageStatusPending,
		}
	}
	return stages
}
