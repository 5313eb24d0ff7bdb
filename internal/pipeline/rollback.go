// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
)

// ImageRemover removes a built image
type ImageRemover interface {
	RemoveImage(ctx context.Context, imageID string, force bool) error
}

// CheckpointClearer deletes the stored checkpoint
type CheckpointClearer interface {
	Clear() error
}

// compensation undoes one effect of a run. Compensations run in reverse
// order of creation: the last artifact produced is the first one removed.
type compensation struct {
	name   string
	action func(ctx context.Context) error
}

// RollbackReport lists what a rollback removed and what it could not
type RollbackReport struct {
	Removed      []string
	ImageRemoved bool
	Warnings     []string
}

// RollbackManager removes the artifacts of a failed run. It never fails;
// problems are reported as warnings.
type RollbackManager struct {
	fs          billy.Filesystem
	images      ImageRemover
	checkpoints CheckpointClearer
}

// NewRollbackManager creates a rollback manager. images may be nil when no
// image can have been built.
func NewRollbackManager(fs billy.Filesystem, images ImageRemover, checkpoints CheckpointClearer) *RollbackManager {
	return &RollbackManager{fs: fs, images: images, checkpoints: checkpoints}
}

// Rollback deletes the generated files, force-removes the image if one was
// built and finally deletes the checkpoint.
func (m *RollbackManager) Rollback(ctx context.Context, generatedFiles []string, imageID string) RollbackReport {
	log := getLog()

	// Cleanup must run even when the run was cancelled
	ctx = context.WithoutCancel(ctx)

	var report RollbackReport
	compensations := []compensation{m.checkpointCompensation()}
	for _, path := range generatedFiles {
		compensations = append(compensations, m.fileCompensation(path, &report))
	}
	if imageID != "" && m.images != nil {
		compensations = append(compensations, m.imageCompensation(imageID, &report))
	}

	for i := len(compensations) - 1; i >= 0; i-- {
		c := compensations[i]
		if err := c.action(ctx); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("rollback: %s: %v", c.name, err))
			log.Warn().Err(err).Str("compensation", c.name).Msg("Compensation failed")
			continue
		}
		log.Debug().Str("compensation", c.name).Msg("Compensation succeeded")
	}

	log.Info().
		Int("files_removed", len(report.Removed)).
		Bool("image_removed", report.ImageRemoved).
		Int("warnings", len(report.Warnings)).
		Msg("Rollback complete")
	return report
}

// fileCompensation deletes a generated file. A file that is already gone counts as removed.
func (m *RollbackManager) fileCompensation(path string, report *RollbackReport) compensation {
	return compensation{
		name: "remove " + path,
		action: func(ctx context.Context) error {
			if err := m.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			report.Removed = append(report.Removed, path)
			return nil
		},
	}
}

// imageCompensation force-removes a built image. It may still be in use, so failure is tolerated.
func (m *RollbackManager) imageCompensation(imageID string, report *RollbackReport) compensation {
	return compensation{
		name: "remove image " + imageID,
		action: func(ctx context.Context) error {
			if err := m.images.RemoveImage(ctx, imageID, true); err != nil {
				return err
			}
			report.ImageRemoved = true
			return nil
		},
	}
}

func (m *RollbackManager) checkpointCompensation() compensation {
	return compensation{
		name: "clear checkpoint",
		action: func(ctx context.Context) error {
			if m.checkpoints == nil {
				return nil
			}
			return m.checkpoints.Clear()
		},
	}
}
