// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/noldarim/mcpsmith/internal/checkpoint"
	"github.com/noldarim/mcpsmith/internal/modules"
	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
	"github.com/noldarim/mcpsmith/pkg/containers/models"
)

type mockDiscoverer struct {
	mock.Mock
}

func (m *mockDiscoverer) Discover(ctx context.Context, basePath string) (*modules.Discovery, error) {
	args := m.Called(ctx, basePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*modules.Discovery), args.Error(1)
}

type mockBuilder struct {
	mock.Mock
}

func (m *mockBuilder) Build(ctx context.Context, contextDir, buildFile, tag string, onProgress func(events.BuildEvent)) (string, error) {
	args := m.Called(ctx, contextDir, buildFile, tag, onProgress)
	return args.String(0), args.Error(1)
}

func (m *mockBuilder) RemoveImage(ctx context.Context, imageID string, force bool) error {
	args := m.Called(ctx, imageID, force)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Tag(ctx context.Context, imageID string, tags []string) (models.TagResult, error) {
	args := m.Called(ctx, imageID, tags)
	return args.Get(0).(models.TagResult), args.Error(1)
}

func (m *mockPublisher) Push(ctx context.Context, tag, registryURL string) error {
	args := m.Called(ctx, tag, registryURL)
	return args.Error(0)
}

// recordingStore remembers the stage of every saved checkpoint
type recordingStore struct {
	*checkpoint.Store
	saved []int
}

func (s *recordingStore) Save(cp *checkpoint.Checkpoint) error {
	s.saved = append(s.saved, cp.Stage)
	return s.Store.Save(cp)
}

// pluginList serves plugins in a fixed order
type pluginList []*plugins.LoadedPlugin

func (l pluginList) Enabled() []*plugins.LoadedPlugin {
	return l
}

func testPlugin(name string, hooks plugins.Hooks) *plugins.LoadedPlugin {
	return &plugins.LoadedPlugin{
		Name:    name,
		Plugin:  &plugins.Plugin{Meta: plugins.Meta{Name: name, Version: "1.0.0"}, Hooks: hooks},
		Enabled: true,
		State:   plugins.StateInitialized,
	}
}
