// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package checkpoint persists the progress of a build so an interrupted run
// can be resumed.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/noldarim/mcpsmith/internal/logger"
)

const (
	// FileName is the checkpoint file at the root of the working directory
	FileName = ".mcpsmith-checkpoint.json"

	// MaxAge is how long a checkpoint stays resumable
	MaxAge = time.Hour
)

// Checkpoint records the last completed stage of a run
type Checkpoint struct {
	RunID          string    `json:"run_id"`
	Project        string    `json:"project"`
	Stage          int       `json:"stage"`
	StageName      string    `json:"stage_name"`
	Timestamp      time.Time `json:"timestamp"`
	GeneratedFiles []string  `json:"generated_files"`
	ImageID        string    `json:"image_id,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Modules        []string  `json:"modules"`
}

// ResumeStatus is the outcome of a resume check
type ResumeStatus struct {
	CanResume  bool
	Checkpoint *Checkpoint
	Age        time.Duration
	Message    string
}

// Store reads and writes the checkpoint file. One run per working directory
// is assumed; there is no locking.
type Store struct {
	fs  billy.Filesystem
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store on the given filesystem
func NewStore(fs billy.Filesystem, opts ...Option) *Store {
	s := &Store{fs: fs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOSStore creates a store rooted at workDir on the local disk
func NewOSStore(workDir string, opts ...Option) *Store {
	return NewStore(osfs.New(workDir), opts...)
}

// Save overwrites the checkpoint. A zero timestamp is set to now.
func (s *Store) Save(cp *Checkpoint) error {
	log := logger.GetCheckpointLogger()

	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.now()
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp := FileName + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := s.fs.Rename(tmp, FileName); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	log.Debug().
		Str("run_id", cp.RunID).
		Int("stage", cp.Stage).
		Str("stage_name", cp.StageName).
		Msg("Checkpoint saved")
	return nil
}

// Load returns the stored checkpoint, or nil when there is none
func (s *Store) Load() (*Checkpoint, error) {
	data, err := util.ReadFile(s.fs, FileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

// Clear deletes the checkpoint. A missing file is not an error.
func (s *Store) Clear() error {
	if err := s.fs.Remove(FileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	log := logger.GetCheckpointLogger()
	log.Debug().Msg("Checkpoint cleared")
	return nil
}

// CheckResume reports whether the stored checkpoint may be resumed. Checkpoints
// older than MaxAge are refused; no checkpoint is refused without a message.
func (s *Store) CheckResume() (ResumeStatus, error) {
	cp, err := s.Load()
	if err != nil {
		return ResumeStatus{}, err
	}
	if cp == nil {
		return ResumeStatus{}, nil
	}

	age := s.now().Sub(cp.Timestamp)
	status := ResumeStatus{Checkpoint: cp, Age: age}
	if age > MaxAge {
		status.Message = fmt.Sprintf("checkpoint is too old (%s since stage %q), restart the build",
			age.Round(time.Minute), cp.StageName)
		return status, nil
	}

	status.CanResume = true
	status.Message = fmt.Sprintf("can resume after stage %d (%s)", cp.Stage, cp.StageName)
	return status, nil
}
