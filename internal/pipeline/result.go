// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noldarim/mcpsmith/internal/plugins"
)

// ErrorCode classifies a stage failure. Codes are strings so they read well in logs and JSON.
type ErrorCode string

const (
	CodeDiscoveryFailed    ErrorCode = "DISCOVERY_FAILED"
	CodeInvalidModules     ErrorCode = "INVALID_MODULES"
	CodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	CodeGenerationFailed   ErrorCode = "GENERATION_FAILED"
	CodeFilesystem         ErrorCode = "FILESYSTEM_ERROR"
	CodeBuildFailed        ErrorCode = "BUILD_FAILED"
	CodePublishFailed      ErrorCode = "PUBLISH_FAILED"
	CodePluginHookFailed   ErrorCode = "PLUGIN_HOOK_FAILED"
	CodeCanceled           ErrorCode = "CANCELED"
)

var stageCodes = map[StageName]ErrorCode{
	StageLoadModules:        CodeDiscoveryFailed,
	StageValidate:           CodeInvalidModules,
	StageCollectCredentials: CodeMissingCredentials,
	StageGenerateManifest:   CodeGenerationFailed,
	StageGenerateConfig:     CodeGenerationFailed,
	StageGenerateDockerfile: CodeGenerationFailed,
	StageBuildImage:         CodeBuildFailed,
	StageTagPush:            CodePublishFailed,
}

// ErrCannotResume is returned by Resume when no fresh checkpoint exists
var ErrCannotResume = errors.New("cannot resume")

// StageError is a fatal failure of one stage
type StageError struct {
	Stage StageName
	Code  ErrorCode
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// filesystemError marks failures writing artifacts
type filesystemError struct {
	err error
}

func (e *filesystemError) Error() string { return e.err.Error() }
func (e *filesystemError) Unwrap() error { return e.err }

func newStageError(stage StageName, err error) *StageError {
	code := stageCodes[stage]
	var fsErr *filesystemError
	switch {
	case plugins.IsHookError(err):
		code = CodePluginHookFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = CodeCanceled
	case errors.As(err, &fsErr):
		code = CodeFilesystem
	}
	return &StageError{Stage: stage, Code: code, Err: err}
}

// Result summarizes a run. A failed run reports the failed stage and leaves no
// generated files behind unless only tag/push failed.
type Result struct {
	RunID          string        `json:"run_id"`
	Success        bool          `json:"success"`
	FailedStage    StageName     `json:"failed_stage,omitempty"`
	Code           ErrorCode     `json:"code,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	Stages         []Stage       `json:"stages"`
	GeneratedFiles []string      `json:"generated_files,omitempty"`
	RolledBack     []string      `json:"rolled_back,omitempty"`
	ImageID        string        `json:"image_id,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	Pushed         []string      `json:"pushed,omitempty"`
	Duration       time.Duration `json:"duration"`
	Resumed        bool          `json:"resumed,omitempty"`
}

// Stage returns the stage with the given name
func (r *Result) Stage(name StageName) (Stage, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}
