// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mcpsmith/pkg/containers/docker"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
	"github.com/noldarim/mcpsmith/pkg/containers/models"
)

func stream(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n")))
}

func expectPublish(p *events.MockPublisher, eventType events.EventType) *mock.Call {
	return p.On("Publish", mock.MatchedBy(func(event events.Event) bool {
		return event.Type == eventType
	})).Return(nil)
}

func TestImageService_Build_Success(t *testing.T) {
	mockClient := &docker.MockClient{}
	mockPublisher := &events.MockPublisher{}
	service := NewImageServiceWithClient(mockClient, mockPublisher,
		WithLabels(map[string]string{"org.opencontainers.image.title": "weather"}),
		WithContextExclude(".git"))

	mockClient.On("BuildImage", mock.Anything, models.BuildOptions{
		ContextDir: "/work",
		Dockerfile: "dist/Dockerfile",
		Tags:       []string{"weather:1.0.0"},
		Labels:     map[string]string{"org.opencontainers.image.title": "weather"},
		Exclude:    []string{".git"},
	}).Return(stream(
		`{"stream":"Step 1/3 : FROM python:3.12-slim\n"}`,
		`{"stream":" ---> abc123\n"}`,
		`{"stream":"Step 2/3 : COPY . /app\n"}`,
		`{"stream":"Step 3/3 : CMD [\"python\"]\n"}`,
		`{"aux":{"ID":"sha256:deadbeef"}}`,
		`{"stream":"Successfully built deadbeef\n"}`,
	), nil)
	expectPublish(mockPublisher, events.ImageBuildStarted)
	expectPublish(mockPublisher, events.ImageBuilt)

	var progress []events.BuildEvent
	imageID, err := service.Build(context.Background(), "/work", "dist/Dockerfile", "weather:1.0.0", func(e events.BuildEvent) {
		progress = append(progress, e)
	})

	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", imageID)
	require.Len(t, progress, 5)
	assert.Equal(t, events.BuildEvent{Type: events.BuildStep, Step: 1, Total: 3, Message: "FROM python:3.12-slim"}, progress[0])
	assert.Equal(t, events.BuildEvent{Type: events.BuildOutput, Message: " ---> abc123"}, progress[1])
	assert.Equal(t, 3, progress[3].Step)

	mockClient.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestImageService_Build_FallsBackToInspect(t *testing.T) {
	mockClient := &docker.MockClient{}
	service := NewImageServiceWithClient(mockClient, nil)

	mockClient.On("BuildImage", mock.Anything, mock.Anything).Return(stream(`{"stream":"Successfully tagged weather:1.0.0\n"}`), nil)
	mockClient.On("InspectImage", mock.Anything, "weather:1.0.0").Return(&models.Image{ID: "sha256:cafe"}, nil)

	imageID, err := service.Build(context.Background(), "/work", "Dockerfile", "weather:1.0.0", nil)

	require.NoError(t, err)
	assert.Equal(t, "sha256:cafe", imageID)
	mockClient.AssertExpectations(t)
}

func TestImageService_Build_StreamError(t *testing.T) {
	mockClient := &docker.MockClient{}
	mockPublisher := &events.MockPublisher{}
	service := NewImageServiceWithClient(mockClient, mockPublisher)

	mockClient.On("BuildImage", mock.Anything, mock.Anything).Return(stream(
		`{"stream":"Step 1/2 : FROM python:3.12-slim\n"}`,
		`{"errorDetail":{"message":"pull access denied"},"error":"pull access denied"}`,
	), nil)
	expectPublish(mockPublisher, events.ImageBuildStarted)
	expectPublish(mockPublisher, events.ImageFailed)

	var last events.BuildEvent
	imageID, err := service.Build(context.Background(), "/work", "Dockerfile", "weather:1.0.0", func(e events.BuildEvent) {
		last = e
	})

	require.Error(t, err)
	assert.Empty(t, imageID)
	assert.Contains(t, err.Error(), "pull access denied")
	assert.Equal(t, events.BuildError, last.Type)
	mockClient.AssertNotCalled(t, "InspectImage", mock.Anything, mock.Anything)
	mockPublisher.AssertExpectations(t)
}

func TestImageService_SetBuildOptions_Merges(t *testing.T) {
	mockClient := &docker.MockClient{}
	service := NewImageServiceWithClient(mockClient, nil,
		WithLabels(map[string]string{"org.opencontainers.image.title": "weather"}),
		WithBuildArgs(map[string]string{"PIP_INDEX": "https://pypi.org/simple"}))

	service.SetBuildOptions(
		map[string]string{"com.acme.team": "tools"},
		map[string]string{"PIP_INDEX": "https://mirror.acme.dev/simple"})

	mockClient.On("BuildImage", mock.Anything, mock.MatchedBy(func(opts models.BuildOptions) bool {
		return opts.Labels["org.opencontainers.image.title"] == "weather" &&
			opts.Labels["com.acme.team"] == "tools" &&
			opts.BuildArgs["PIP_INDEX"] == "https://mirror.acme.dev/simple"
	})).Return(stream(`{"aux":{"ID":"sha256:beef"}}`), nil)

	imageID, err := service.Build(context.Background(), "/work", "Dockerfile", "weather:1.0.0", nil)

	require.NoError(t, err)
	assert.Equal(t, "sha256:beef", imageID)
	mockClient.AssertExpectations(t)
}

func TestImageService_Build_InvalidTag(t *testing.T) {
	mockClient := &docker.MockClient{}
	service := NewImageServiceWithClient(mockClient, nil)

	_, err := service.Build(context.Background(), "/work", "Dockerfile", "Not A Tag", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid build tag")
	mockClient.AssertNotCalled(t, "BuildImage", mock.Anything, mock.Anything)
}

func TestImageService_Tag_PartialFailure(t *testing.T) {
	mockClient := &docker.MockClient{}
	mockPublisher := &events.MockPublisher{}
	service := NewImageServiceWithClient(mockClient, mockPublisher)

	mockClient.On("TagImage", mock.Anything, "sha256:abc", "weather:latest").Return(nil)
	mockClient.On("TagImage", mock.Anything, "sha256:abc", "weather:stable").Return(fmt.Errorf("engine said no"))
	expectPublish(mockPublisher, events.ImageTagged)
	expectPublish(mockPublisher, events.ImageFailed)

	result, err := service.Tag(context.Background(), "sha256:abc", []string{"weather:latest", "weather:stable", "BAD TAG"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply 2 of 3 tags")
	assert.Equal(t, []string{"weather:latest"}, result.Applied)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "weather:stable", result.Failed[0].Tag)
	assert.Equal(t, "BAD TAG", result.Failed[1].Tag)
	mockClient.AssertExpectations(t)
}

func TestImageService_Push_RetagsAndRetries(t *testing.T) {
	mockClient := &docker.MockClient{}
	mockPublisher := &events.MockPublisher{}
	auth := &models.RegistryAuth{Username: "bot", Password: "s3cret"}
	service := NewImageServiceWithClient(mockClient, mockPublisher,
		WithRegistryAuth(auth),
		WithPushRetry(3, 0))

	expectedAuth := &models.RegistryAuth{Username: "bot", Password: "s3cret", ServerAddress: "registry.example.com"}

	mockClient.On("TagImage", mock.Anything, "weather:1.0.0", "registry.example.com/weather:1.0.0").Return(nil)
	mockClient.On("PushImage", mock.Anything, "registry.example.com/weather:1.0.0", expectedAuth).
		Return(stream(`{"errorDetail":{"message":"timeout"},"error":"timeout"}`), nil).Once()
	mockClient.On("PushImage", mock.Anything, "registry.example.com/weather:1.0.0", expectedAuth).
		Return(stream(`{"status":"Pushed"}`, `{"status":"1.0.0: digest: sha256:abc size: 123"}`), nil).Once()
	expectPublish(mockPublisher, events.ImagePushed)

	err := service.Push(context.Background(), "weather:1.0.0", "registry.example.com")

	require.NoError(t, err)
	mockClient.AssertNumberOfCalls(t, "PushImage", 2)
	mockClient.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
	// The caller's auth is not mutated
	assert.Empty(t, auth.ServerAddress)
}

func TestImageService_Push_GivesUp(t *testing.T) {
	mockClient := &docker.MockClient{}
	mockPublisher := &events.MockPublisher{}
	service := NewImageServiceWithClient(mockClient, mockPublisher, WithPushRetry(2, 0))

	mockClient.On("PushImage", mock.Anything, "weather:1.0.0", (*models.RegistryAuth)(nil)).
		Return(nil, fmt.Errorf("connection refused"))
	expectPublish(mockPublisher, events.ImageFailed)

	err := service.Push(context.Background(), "weather:1.0.0", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
	assert.Contains(t, err.Error(), "connection refused")
	mockClient.AssertNumberOfCalls(t, "PushImage", 2)
	mockClient.AssertNotCalled(t, "TagImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageService_RemoveImage(t *testing.T) {
	mockClient := &docker.MockClient{}
	mockPublisher := &events.MockPublisher{}
	service := NewImageServiceWithClient(mockClient, mockPublisher)

	mockClient.On("RemoveImage", mock.Anything, "sha256:abc", true).Return(nil).Once()
	expectPublish(mockPublisher, events.ImageRemoved)
	require.NoError(t, service.RemoveImage(context.Background(), "sha256:abc", true))

	mockClient.On("RemoveImage", mock.Anything, "sha256:def", true).Return(fmt.Errorf("image is in use"))
	expectPublish(mockPublisher, events.ImageFailed)
	err := service.RemoveImage(context.Background(), "sha256:def", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")

	mockClient.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestParseBuildLine(t *testing.T) {
	tests := []struct {
		line     string
		expected events.BuildEvent
	}{
		{"Step 4/9 : RUN pip install -r requirements.txt", events.BuildEvent{Type: events.BuildStep, Step: 4, Total: 9, Message: "RUN pip install -r requirements.txt"}},
		{" ---> Running in 0123", events.BuildEvent{Type: events.BuildOutput, Message: " ---> Running in 0123"}},
		{"Step four", events.BuildEvent{Type: events.BuildOutput, Message: "Step four"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseBuildLine(tt.line))
		})
	}
}
