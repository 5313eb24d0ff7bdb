// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package docker

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/noldarim/mcpsmith/pkg/containers/models"
)

// MockClient is a mock implementation of ClientInterface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) BuildImage(ctx context.Context, opts models.BuildOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockClient) InspectImage(ctx context.Context, ref string) (*models.Image, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Image), args.Error(1)
}

func (m *MockClient) TagImage(ctx context.Context, source string, target string) error {
	args := m.Called(ctx, source, target)
	return args.Error(0)
}

func (m *MockClient) PushImage(ctx context.Context, ref string, auth *models.RegistryAuth) (io.ReadCloser, error) {
	args := m.Called(ctx, ref, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockClient) RemoveImage(ctx context.Context, imageID string, force bool) error {
	args := m.Called(ctx, imageID, force)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
