// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline drives a server build through its fixed stages, saving a
// checkpoint after each one and rolling back when a stage fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noldarim/mcpsmith/internal/checkpoint"
	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/credentials"
	"github.com/noldarim/mcpsmith/internal/generate"
	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/internal/modules"
	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
)

const (
	ManifestFileName = "manifest.json"
	ConfigFileName   = "mcp-config.yaml"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetPipelineLogger()
		log = &l
	})
	return log
}

// Dependencies are the collaborators each stage delegates to. Hooks may be nil.
type Dependencies struct {
	Discoverer  ModuleDiscoverer
	Validator   ModuleValidator
	Credentials CredentialDiscoverer
	Resolver    CredentialResolver
	Manifests   ManifestGenerator
	Configs     ConfigGenerator
	Dockerfiles DockerfileGenerator
	Builder     ImageBuilder
	Publisher   ImagePublisher
	Hooks       Hooks
	Checkpoints CheckpointStore
	FS          billy.Filesystem // Rooted at the working directory
}

// Options control a single run
type Options struct {
	DryRun      bool
	Tags        []string // Applied in addition to the build tag
	Push        bool
	RegistryURL string
	OnProgress  func(Progress)
}

// Progress is reported when a stage changes status and for every build event
type Progress struct {
	Stage   Stage
	Message string
	Build   *events.BuildEvent
}

// Orchestrator runs the build stages strictly in order. It is not safe to run
// two builds against the same working directory at once.
type Orchestrator struct {
	cfg      *config.AppConfig
	deps     Dependencies
	rollback *RollbackManager
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDGenerator replaces the run ID generator
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

// NewOrchestrator creates an orchestrator. Every dependency except Hooks is required.
func NewOrchestrator(cfg *config.AppConfig, deps Dependencies, opts ...Option) (*Orchestrator, error) {
	missing := lo.FilterMap([]lo.Tuple2[string, bool]{
		lo.T2("discoverer", deps.Discoverer == nil),
		lo.T2("validator", deps.Validator == nil),
		lo.T2("credential discoverer", deps.Credentials == nil),
		lo.T2("credential resolver", deps.Resolver == nil),
		lo.T2("manifest generator", deps.Manifests == nil),
		lo.T2("config generator", deps.Configs == nil),
		lo.T2("dockerfile generator", deps.Dockerfiles == nil),
		lo.T2("image builder", deps.Builder == nil),
		lo.T2("image publisher", deps.Publisher == nil),
		lo.T2("checkpoint store", deps.Checkpoints == nil),
		lo.T2("filesystem", deps.FS == nil),
	}, func(t lo.Tuple2[string, bool], _ int) (string, bool) { return t.A, t.B })
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline is missing dependencies: %s", strings.Join(missing, ", "))
	}
	if deps.Hooks == nil {
		deps.Hooks = plugins.NewHookRunner(noPlugins{})
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		rollback: NewRollbackManager(deps.FS, deps.Builder, deps.Checkpoints),
		tracer:   otel.Tracer("github.com/noldarim/mcpsmith/internal/pipeline"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run holds the state threaded through the stages of one build
type run struct {
	id       string
	opts     Options
	stages   []*Stage
	started  time.Time
	resumed  bool
	restored []string // Module names from the checkpoint

	modules      []modules.Module
	requirements []credentials.Requirement
	files        []string
	imageID      string
	tags         []string
	pushed       []string
	warnings     []string
}

func (r *run) warn(msg string) {
	r.warnings = append(r.warnings, msg)
}

type stageFunc func(ctx context.Context, r *run) (artifact string, err error)

type stageDef struct {
	name StageName
	// skip returns a reason when the stage has nothing to do
	skip func(r *run) string
	exec stageFunc
	// nonFatal failures become warnings; hook errors stay fatal
	nonFatal bool
}

func (o *Orchestrator) stageDefs() []stageDef {
	return []stageDef{
		{name: StageLoadModules, exec: o.loadModules},
		{name: StageValidate, exec: o.validate},
		{name: StageCollectCredentials, exec: o.collectCredentials},
		{name: StageGenerateManifest, exec: o.generateManifest},
		{name: StageGenerateConfig, exec: o.generateConfig},
		{name: StageGenerateDockerfile, exec: o.generateDockerfile},
		{name: StageBuildImage, exec: o.buildImage, skip: skipBuild},
		{name: StageTagPush, exec: o.tagPush, skip: skipTagPush, nonFatal: true},
	}
}

// Run executes every stage from the beginning. The returned error is the
// failing *StageError; the result is always non-nil.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	r := &run{
		id:      o.newID(),
		opts:    opts,
		stages:  newStages(),
		started: o.now(),
	}
	return o.execute(ctx, r, 0)
}

// CheckResume reports whether a stored checkpoint can be resumed
func (o *Orchestrator) CheckResume() (checkpoint.ResumeStatus, error) {
	return o.deps.Checkpoints.CheckResume()
}

// Resume continues the run recorded in the checkpoint. Stages up to and
// including the checkpointed one are marked skipped; the module set and the
// credential requirements are rebuilt without prompting.
func (o *Orchestrator) Resume(ctx context.Context, opts Options) (*Result, error) {
	status, err := o.deps.Checkpoints.CheckResume()
	if err != nil {
		return nil, fmt.Errorf("failed to check checkpoint: %w", err)
	}
	if !status.CanResume {
		if status.Message == "" {
			return nil, fmt.Errorf("%w: no checkpoint found", ErrCannotResume)
		}
		return nil, fmt.Errorf("%w: %s", ErrCannotResume, status.Message)
	}

	cp := status.Checkpoint
	if cp.Stage < 1 || cp.Stage > len(StageNames) {
		return nil, fmt.Errorf("%w: checkpoint stage %d out of range", ErrCannotResume, cp.Stage)
	}

	r := &run{
		id:       cp.RunID,
		opts:     opts,
		stages:   newStages(),
		started:  o.now(),
		resumed:  true,
		restored: cp.Modules,
		files:    slices.Clone(cp.GeneratedFiles),
		imageID:  cp.ImageID,
		tags:     slices.Clone(cp.Tags),
	}
	if r.id == "" {
		r.id = o.newID()
	}
	if r.imageID != "" && len(r.tags) == 0 {
		r.tags = []string{o.cfg.ImageTag()}
	}

	getLog().Info().
		Str("run_id", r.id).
		Int("stage", cp.Stage).
		Str("stage_name", cp.StageName).
		Msg("Resuming build from checkpoint")

	if err := o.hydrate(ctx, r, cp.Stage); err != nil {
		st := r.stages[0]
		st.Status = StageStatusFailed
		st.Error = err.Error()
		o.progress(r, st, "")
		stageErr := newStageError(st.Name, err)
		return o.finish(r, stageErr), stageErr
	}

	for _, st := range r.stages[:cp.Stage] {
		st.Status = StageStatusSkipped
		o.progress(r, st, "restored from checkpoint")
	}

	return o.execute(ctx, r, cp.Stage)
}

// hydrate rebuilds the in-memory state the completed stages produced
func (o *Orchestrator) hydrate(ctx context.Context, r *run, completed int) error {
	if _, err := o.loadModules(ctx, r); err != nil {
		return err
	}
	restored := lo.SliceToMap(r.restored, func(name string) (string, bool) { return name, true })
	r.modules = lo.Filter(r.modules, func(m modules.Module, _ int) bool { return restored[m.Name] })

	if completed >= 3 {
		r.requirements = o.deps.Credentials.Discover(r.modules)
	}
	return nil
}

// Rollback removes the artifacts recorded in the stored checkpoint
func (o *Orchestrator) Rollback(ctx context.Context) (RollbackReport, error) {
	cp, err := o.deps.Checkpoints.Load()
	if err != nil {
		return RollbackReport{}, err
	}
	if cp == nil {
		return RollbackReport{}, nil
	}
	return o.rollback.Rollback(ctx, cp.GeneratedFiles, cp.ImageID), nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, from int) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.String("project", o.cfg.Project.Name),
			attribute.Bool("dry_run", r.opts.DryRun),
			attribute.Bool("resumed", r.resumed),
		))
	defer span.End()

	defs := o.stageDefs()
	for i := from; i < len(r.stages); i++ {
		st, def := r.stages[i], defs[i]

		if err := ctx.Err(); err != nil {
			return o.fail(ctx, span, r, st, err)
		}

		if def.skip != nil {
			if reason := def.skip(r); reason != "" {
				st.Status = StageStatusSkipped
				o.progress(r, st, reason)
				getLog().Info().Str("stage", string(st.Name)).Str("reason", reason).Msg("Stage skipped")
				continue
			}
		}

		artifact, err := o.runStage(ctx, r, st, def)
		if err != nil {
			if def.nonFatal && !plugins.IsHookError(err) {
				r.warn(fmt.Sprintf("%s: %v", st.Name, err))
				getLog().Warn().Err(err).Str("stage", string(st.Name)).Msg("Stage failed, continuing")
				continue
			}
			return o.fail(ctx, span, r, st, err)
		}

		if artifact != "" {
			r.files = append(r.files, artifact)
		}
		o.saveCheckpoint(r, st)
	}

	if err := o.deps.Checkpoints.Clear(); err != nil {
		r.warn(fmt.Sprintf("failed to clear checkpoint: %v", err))
	}

	res := o.finish(r, nil)
	span.SetStatus(codes.Ok, "build completed")
	getLog().Info().
		Str("run_id", r.id).
		Int("files", len(res.GeneratedFiles)).
		Str("image_id", res.ImageID).
		Int("warnings", len(res.Warnings)).
		Dur("duration", res.Duration).
		Msg("Build completed")
	return res, nil
}

// runStage moves one stage through running to completed or failed
func (o *Orchestrator) runStage(ctx context.Context, r *run, st *Stage, def stageDef) (string, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("stage.name", string(st.Name)),
			attribute.Int("stage.index", st.Index),
		))
	defer span.End()

	st.Status = StageStatusRunning
	st.StartedAt = o.now()
	o.progress(r, st, "")
	getLog().Debug().Str("run_id", r.id).Str("stage", string(st.Name)).Int("index", st.Index).Msg("Stage started")

	artifact, err := def.exec(ctx, r)

	st.CompletedAt = o.now()
	st.Duration = st.CompletedAt.Sub(st.StartedAt)
	if err != nil {
		st.Status = StageStatusFailed
		st.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		o.progress(r, st, "")
		return "", err
	}

	st.Status = StageStatusCompleted
	o.progress(r, st, "")
	getLog().Info().
		Str("run_id", r.id).
		Str("stage", string(st.Name)).
		Dur("duration", st.Duration).
		Msg("Stage completed")
	return artifact, nil
}

// fail marks the stage failed, rolls the run back and builds the failure result
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, r *run, st *Stage, err error) (*Result, error) {
	stageErr := newStageError(st.Name, err)
	if st.Status != StageStatusFailed {
		st.Status = StageStatusFailed
		st.Error = err.Error()
		o.progress(r, st, "")
	}

	span.RecordError(stageErr)
	span.SetStatus(codes.Error, string(stageErr.Code))
	getLog().Error().
		Err(err).
		Str("run_id", r.id).
		Str("stage", string(st.Name)).
		Str("code", string(stageErr.Code)).
		Msg("Stage failed, rolling back")

	report := o.rollback.Rollback(ctx, r.files, r.imageID)
	r.warnings = append(r.warnings, report.Warnings...)
	r.files = nil
	if report.ImageRemoved {
		r.imageID = ""
	}

	res := o.finish(r, stageErr)
	res.RolledBack = report.Removed
	return res, stageErr
}

// finish snapshots the run into a result
func (o *Orchestrator) finish(r *run, stageErr *StageError) *Result {
	res := &Result{
		RunID:          r.id,
		Success:        stageErr == nil,
		Warnings:       slices.Clone(r.warnings),
		Stages:         lo.Map(r.stages, func(s *Stage, _ int) Stage { return *s }),
		GeneratedFiles: slices.Clone(r.files),
		ImageID:        r.imageID,
		Tags:           slices.Clone(r.tags),
		Pushed:         slices.Clone(r.pushed),
		Duration:       o.now().Sub(r.started),
		Resumed:        r.resumed,
	}
	if stageErr != nil {
		res.FailedStage = stageErr.Stage
		res.Code = stageErr.Code
		res.Errors = []string{stageErr.Error()}
	}
	return res
}

func (o *Orchestrator) saveCheckpoint(r *run, st *Stage) {
	cp := &checkpoint.Checkpoint{
		RunID:          r.id,
		Project:        o.cfg.Project.Name,
		Stage:          st.Index,
		StageName:      string(st.Name),
		Timestamp:      o.now(),
		GeneratedFiles: slices.Clone(r.files),
		ImageID:        r.imageID,
		Tags:           slices.Clone(r.tags),
		Modules:        modules.Names(r.modules),
	}
	if err := o.deps.Checkpoints.Save(cp); err != nil {
		r.warn(fmt.Sprintf("failed to save checkpoint after %s: %v", st.Name, err))
		getLog().Warn().Err(err).Str("stage", string(st.Name)).Msg("Failed to save checkpoint")
	}
}

func (o *Orchestrator) progress(r *run, st *Stage, message string) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(Progress{Stage: *st, Message: message})
	}
}

func (o *Orchestrator) loadModules(ctx context.Context, r *run) (string, error) {
	discovery, err := o.deps.Discoverer.Discover(ctx, o.cfg.ModulesPath())
	if err != nil {
		return "", fmt.Errorf("module discovery failed: %w", err)
	}
	if !r.resumed {
		r.warnings = append(r.warnings, discovery.Warnings...)
	}

	kept := make([]modules.Module, 0, len(discovery.Modules))
	for _, m := range discovery.Modules {
		if m.Disabled {
			continue
		}
		switch m.Kind {
		case modules.KindTool:
			tc, err := o.deps.Hooks.RunToolLoaded(ctx, plugins.ToolContext{Module: m})
			if err != nil {
				return "", err
			}
			if tc.Disabled {
				getLog().Info().Str("module", m.Name).Msg("Tool disabled by plugin")
				continue
			}
			m = tc.Module
		case modules.KindConnector:
			if err := o.deps.Hooks.RunConnectorLoaded(ctx, plugins.ConnectorContext{Module: m}); err != nil {
				return "", err
			}
		}
		kept = append(kept, m)
	}
	r.modules = kept

	getLog().Info().
		Int("discovered", len(discovery.Modules)).
		Int("kept", len(kept)).
		Msg("Modules loaded")
	return "", nil
}

func (o *Orchestrator) validate(ctx context.Context, r *run) (string, error) {
	result := o.deps.Validator.Validate(r.modules)
	r.warnings = append(r.warnings, result.Warnings...)
	if !result.Valid {
		return "", fmt.Errorf("module validation failed: %s", strings.Join(result.Errors, "; "))
	}
	return "", nil
}

func (o *Orchestrator) collectCredentials(ctx context.Context, r *run) (string, error) {
	r.requirements = o.deps.Credentials.Discover(r.modules)
	resolution, err := o.deps.Resolver.Resolve(ctx, r.requirements)
	if resolution != nil {
		r.warnings = append(r.warnings, resolution.Warnings...)
	}
	if err != nil {
		return "", err
	}
	return "", nil
}

func (o *Orchestrator) generateManifest(ctx context.Context, r *run) (string, error) {
	manifest, err := o.deps.Manifests.Generate(generate.ManifestInput{
		Name:        o.cfg.Project.Name,
		Version:     o.cfg.Project.Version,
		Description: o.cfg.Project.Description,
		Transport:   o.cfg.Build.Transport,
		Modules:     r.modules,
		Credentials: r.requirements,
	})
	if err != nil {
		return "", err
	}

	amended, err := o.deps.Hooks.RunManifestGenerated(ctx, plugins.Manifest(manifest))
	if err != nil {
		return "", err
	}

	data, err := generate.RenderManifest(amended)
	if err != nil {
		return "", err
	}
	return o.writeArtifact(o.outputPath(ManifestFileName), data)
}

func (o *Orchestrator) generateConfig(ctx context.Context, r *run) (string, error) {
	content, err := o.deps.Configs.Generate(generate.ConfigInput{
		Name:         o.cfg.Project.Name,
		Version:      o.cfg.Project.Version,
		Transport:    o.cfg.Build.Transport,
		Port:         o.cfg.Build.Port,
		ManifestFile: ManifestFileName,
		Modules:      r.modules,
		Credentials:  r.requirements,
	})
	if err != nil {
		return "", err
	}
	return o.writeArtifact(o.outputPath(ConfigFileName), []byte(content))
}

func (o *Orchestrator) generateDockerfile(ctx context.Context, r *run) (string, error) {
	modulesDir, err := o.modulesDirInContext()
	if err != nil {
		return "", err
	}

	content, err := o.deps.Dockerfiles.Generate(generate.DockerfileInput{
		Name:         o.cfg.Project.Name,
		Version:      o.cfg.Project.Version,
		Languages:    lo.Map(r.modules, func(m modules.Module, _ int) modules.Language { return m.Language }),
		BaseImages:   o.cfg.Build.BaseImages,
		Transport:    o.cfg.Build.Transport,
		Port:         o.cfg.Build.Port,
		ModulesDir:   modulesDir,
		OutputDir:    o.cfg.Project.OutputDir,
		ManifestFile: ManifestFileName,
		ConfigFile:   ConfigFileName,
	})
	if err != nil {
		return "", err
	}

	content, err = o.deps.Hooks.RunDockerfileGenerated(ctx, content)
	if err != nil {
		return "", err
	}
	return o.writeArtifact(o.dockerfilePath(), []byte(content))
}

func skipBuild(r *run) string {
	if r.opts.DryRun {
		return "dry run"
	}
	return ""
}

func (o *Orchestrator) buildImage(ctx context.Context, r *run) (string, error) {
	bc, err := o.deps.Hooks.RunBeforeBuild(ctx, plugins.BuildContext{
		RunID:       r.id,
		ProjectName: o.cfg.Project.Name,
		Version:     o.cfg.Project.Version,
		WorkDir:     o.cfg.Project.WorkDir,
		OutputDir:   o.cfg.Project.OutputDir,
		Dockerfile:  o.dockerfilePath(),
		ImageTag:    o.cfg.ImageTag(),
		Modules:     modules.Names(r.modules),
		Labels:      map[string]string{},
		BuildArgs:   maps.Clone(o.cfg.Build.BuildArgs),
		Metadata:    map[string]any{},
	})
	if err != nil {
		return "", err
	}
	if bo, ok := o.deps.Builder.(BuildOptionsSetter); ok {
		bo.SetBuildOptions(bc.Labels, bc.BuildArgs)
	}

	onProgress := func(ev events.BuildEvent) {
		if r.opts.OnProgress != nil {
			r.opts.OnProgress(Progress{Stage: *r.stages[6], Build: &ev})
		}
	}

	imageID, err := o.deps.Builder.Build(ctx, o.cfg.Project.WorkDir, bc.Dockerfile, bc.ImageTag, onProgress)
	if imageID != "" {
		r.imageID = imageID
	}
	if err != nil {
		return "", fmt.Errorf("image build failed: %w", err)
	}
	r.tags = []string{bc.ImageTag}

	bc.ImageID = imageID
	if err := o.deps.Hooks.RunAfterBuild(ctx, bc); err != nil {
		return "", err
	}
	return "", nil
}

func skipTagPush(r *run) string {
	switch {
	case r.opts.DryRun:
		return "dry run"
	case r.imageID == "":
		return "no image built"
	case len(r.opts.Tags) == 0 && !r.opts.Push:
		return "no tags or push requested"
	}
	return ""
}

// tagPush applies the extra tags and pushes. Tag and push failures are
// returned joined; the caller records them as warnings.
func (o *Orchestrator) tagPush(ctx context.Context, r *run) (string, error) {
	dc, err := o.deps.Hooks.RunBeforeDeploy(ctx, plugins.DeployContext{
		RunID:       r.id,
		ImageID:     r.imageID,
		Tags:        lo.Uniq(r.opts.Tags),
		RegistryURL: r.opts.RegistryURL,
		Push:        r.opts.Push,
		Metadata:    map[string]any{},
	})
	if err != nil {
		return "", err
	}

	var failures []error
	extra := lo.Filter(dc.Tags, func(t string, _ int) bool { return !lo.Contains(r.tags, t) })
	if len(extra) > 0 {
		result, err := o.deps.Publisher.Tag(ctx, dc.ImageID, extra)
		r.tags = append(r.tags, result.Applied...)
		if err != nil {
			failures = append(failures, err)
		}
		dc.Applied = result.Applied
	}

	if dc.Push {
		for _, tag := range r.tags {
			if err := o.deps.Publisher.Push(ctx, tag, dc.RegistryURL); err != nil {
				failures = append(failures, fmt.Errorf("push %s: %w", tag, err))
				continue
			}
			r.pushed = append(r.pushed, tag)
		}
		dc.Pushed = slices.Clone(r.pushed)
	}

	if err := o.deps.Hooks.RunAfterDeploy(ctx, dc); err != nil {
		return "", err
	}
	return "", errors.Join(failures...)
}

// writeArtifact writes a generated file and returns its work-dir relative path
func (o *Orchestrator) writeArtifact(name string, data []byte) (string, error) {
	if err := o.deps.FS.MkdirAll(path.Dir(name), 0o755); err != nil {
		return "", &filesystemError{fmt.Errorf("failed to create %s: %w", path.Dir(name), err)}
	}
	if err := util.WriteFile(o.deps.FS, name, data, 0o644); err != nil {
		return "", &filesystemError{fmt.Errorf("failed to write %s: %w", name, err)}
	}
	getLog().Debug().Str("file", name).Int("bytes", len(data)).Msg("Artifact written")
	return name, nil
}

func (o *Orchestrator) outputPath(name string) string {
	return path.Join(filepath.ToSlash(o.cfg.Project.OutputDir), name)
}

func (o *Orchestrator) dockerfilePath() string {
	return o.outputPath(o.cfg.Build.Dockerfile)
}

// modulesDirInContext returns the modules directory relative to the build context
func (o *Orchestrator) modulesDirInContext() (string, error) {
	workDir, err := filepath.Abs(o.cfg.Project.WorkDir)
	if err != nil {
		return "", err
	}
	modulesDir, err := filepath.Abs(o.cfg.ModulesPath())
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(workDir, modulesDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("modules directory %s must be inside the work dir %s", modulesDir, workDir)
	}
	return filepath.ToSlash(rel), nil
}
