// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/pkg/containers/docker"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
	"github.com/noldarim/mcpsmith/pkg/containers/models"
	"github.com/noldarim/mcpsmith/pkg/containers/validation"
)

var stepRegex = regexp.MustCompile(`^Step (\d+)/(\d+) : (.*)$`)

// ImageService builds, tags, pushes and removes images and publishes events
type ImageService struct {
	client        docker.ClientInterface
	publisher     events.Publisher
	auth          *models.RegistryAuth
	labels        map[string]string
	buildArgs     map[string]string
	exclude       []string
	pushAttempts  uint
	pushRetryWait time.Duration
}

// Option configures an ImageService
type Option func(*ImageService)

// WithRegistryAuth sets the credentials used for every push
func WithRegistryAuth(auth *models.RegistryAuth) Option {
	return func(s *ImageService) { s.auth = auth }
}

// WithLabels sets labels applied to every build
func WithLabels(labels map[string]string) Option {
	return func(s *ImageService) { s.labels = labels }
}

// WithBuildArgs sets ARG values passed to every build
func WithBuildArgs(args map[string]string) Option {
	return func(s *ImageService) { s.buildArgs = args }
}

// WithContextExclude lists top-level context entries that are never sent to the engine
func WithContextExclude(names ...string) Option {
	return func(s *ImageService) { s.exclude = append(s.exclude, names...) }
}

// WithPushRetry configures push retries. attempts is the total number of tries.
func WithPushRetry(attempts uint, delay time.Duration) Option {
	return func(s *ImageService) {
		if attempts == 0 {
			attempts = 1
		}
		s.pushAttempts = attempts
		s.pushRetryWait = delay
	}
}

// NewImageService creates an image service talking to dockerHost (empty means environment defaults)
func NewImageService(publisher events.Publisher, dockerHost string, opts ...Option) (*ImageService, error) {
	client, err := docker.NewClientWithHost(dockerHost)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewImageServiceWithClient(client, publisher, opts...), nil
}

// NewImageServiceWithClient creates an image service with provided client
func NewImageServiceWithClient(client docker.ClientInterface, publisher events.Publisher, opts ...Option) *ImageService {
	s := &ImageService{
		client:        client,
		publisher:     publisher,
		pushAttempts:  3,
		pushRetryWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBuildOptions merges labels and build args into the ones applied to every
// later build. Keys already set are overwritten.
func (s *ImageService) SetBuildOptions(labels, buildArgs map[string]string) {
	s.labels = lo.Assign(s.labels, labels)
	s.buildArgs = lo.Assign(s.buildArgs, buildArgs)
}

// Build builds contextDir/buildFile as tag and reports structured progress.
// When the engine reported an image ID before failing, the ID is returned along
// with the error so the caller can clean it up.
func (s *ImageService) Build(ctx context.Context, contextDir, buildFile, tag string, onProgress func(events.BuildEvent)) (string, error) {
	log := logger.GetContainerLogger()

	if err := validation.ValidateImageReference(tag); err != nil {
		return "", fmt.Errorf("invalid build tag: %w", err)
	}
	if err := validation.ValidateImageLabels(s.labels); err != nil {
		return "", fmt.Errorf("invalid image labels: %w", err)
	}
	if err := validation.ValidateBuildArgs(s.buildArgs); err != nil {
		return "", fmt.Errorf("invalid build args: %w", err)
	}

	if onProgress == nil {
		onProgress = func(events.BuildEvent) {}
	}

	started := time.Now()
	s.publishEvent(events.ImageBuildStarted, events.ImageBuildStartedEvent{
		Tag:        tag,
		ContextDir: contextDir,
		Dockerfile: buildFile,
		Timestamp:  started,
	})

	stream, err := s.client.BuildImage(ctx, models.BuildOptions{
		ContextDir: contextDir,
		Dockerfile: buildFile,
		Tags:       []string{tag},
		Labels:     s.labels,
		BuildArgs:  s.buildArgs,
		Exclude:    s.exclude,
	})
	if err != nil {
		s.publishFailedEvent(tag, "build", err)
		return "", err
	}
	defer stream.Close()

	imageID, err := consumeBuildStream(stream, onProgress)
	if err != nil {
		s.publishFailedEvent(tag, "build", err)
		return imageID, err
	}

	if imageID == "" {
		// Older engines do not emit the aux ID message
		img, err := s.client.InspectImage(ctx, tag)
		if err != nil {
			s.publishFailedEvent(tag, "build", err)
			return "", fmt.Errorf("build finished but image could not be resolved: %w", err)
		}
		imageID = img.ID
	}

	duration := time.Since(started)
	log.Info().Str("tag", tag).Str("image_id", imageID).Dur("duration", duration).Msg("Image built")

	s.publishEvent(events.ImageBuilt, events.ImageBuiltEvent{
		ImageID:   imageID,
		Tag:       tag,
		Duration:  duration,
		Timestamp: time.Now(),
	})

	return imageID, nil
}

// consumeBuildStream decodes the engine's JSON message stream into build events
func consumeBuildStream(r io.Reader, onProgress func(events.BuildEvent)) (string, error) {
	var imageID string
	dec := json.NewDecoder(r)

	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return imageID, nil
			}
			return imageID, fmt.Errorf("failed to read build output: %w", err)
		}

		if msg.Error != nil {
			onProgress(events.BuildEvent{Type: events.BuildError, Message: msg.Error.Message})
			return imageID, fmt.Errorf("image build failed: %w", msg.Error)
		}

		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				imageID = aux.ID
			}
			continue
		}

		text := strings.TrimRight(msg.Stream, "\r\n")
		if text == "" {
			text = strings.TrimSpace(msg.Status)
		}
		if text == "" {
			continue
		}

		onProgress(parseBuildLine(text))
	}
}

// parseBuildLine recognizes classic builder "Step N/M : ..." headers
func parseBuildLine(line string) events.BuildEvent {
	if m := stepRegex.FindStringSubmatch(line); m != nil {
		step, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		return events.BuildEvent{Type: events.BuildStep, Step: step, Total: total, Message: m[3]}
	}
	return events.BuildEvent{Type: events.BuildOutput, Message: line}
}

// RemoveImage removes an image and publishes the result
func (s *ImageService) RemoveImage(ctx context.Context, imageID string, force bool) error {
	if err := s.client.RemoveImage(ctx, imageID, force); err != nil {
		s.publishFailedEvent(imageID, "remove", err)
		return err
	}

	s.publishEvent(events.ImageRemoved, events.ImageRemovedEvent{
		ImageID:   imageID,
		Timestamp: time.Now(),
	})
	return nil
}

// Tag applies every tag to imageID. Invalid or rejected tags are collected in
// the result; the returned error is non-nil when at least one tag failed.
func (s *ImageService) Tag(ctx context.Context, imageID string, tags []string) (models.TagResult, error) {
	result := models.TagResult{Applied: []string{}, Failed: []models.TagFailure{}}

	for _, tag := range tags {
		if err := validation.ValidateImageReference(tag); err != nil {
			result.Failed = append(result.Failed, models.TagFailure{Tag: tag, Error: err.Error()})
			continue
		}
		if err := s.client.TagImage(ctx, imageID, tag); err != nil {
			s.publishFailedEvent(tag, "tag", err)
			result.Failed = append(result.Failed, models.TagFailure{Tag: tag, Error: err.Error()})
			continue
		}

		result.Applied = append(result.Applied, tag)
		s.publishEvent(events.ImageTagged, events.ImageTaggedEvent{
			ImageID:   imageID,
			Tag:       tag,
			Timestamp: time.Now(),
		})
	}

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("failed to apply %d of %d tags", len(result.Failed), len(tags))
	}
	return result, nil
}

// Push pushes tag to registryURL, retagging it under the registry first when needed.
func (s *ImageService) Push(ctx context.Context, tag, registryURL string) error {
	log := logger.GetContainerLogger()

	ref := validation.QualifyReference(tag, registryURL)
	if err := validation.ValidateImageReference(ref); err != nil {
		return fmt.Errorf("invalid push reference: %w", err)
	}
	if ref != tag {
		if err := s.client.TagImage(ctx, tag, ref); err != nil {
			s.publishFailedEvent(ref, "push", err)
			return err
		}
	}

	auth := s.auth
	if auth != nil && auth.ServerAddress == "" && registryURL != "" {
		withServer := *auth
		withServer.ServerAddress = registryURL
		auth = &withServer
	}

	var attempts uint
	err := retry.Do(
		func() error {
			attempts++
			stream, err := s.client.PushImage(ctx, ref, auth)
			if err != nil {
				return err
			}
			defer stream.Close()
			return consumePushStream(stream)
		},
		retry.Context(ctx),
		retry.Attempts(s.pushAttempts),
		retry.Delay(s.pushRetryWait),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("ref", ref).Uint("attempt", n+1).Msg("Push failed, retrying")
		}),
	)
	if err != nil {
		s.publishFailedEvent(ref, "push", err)
		return fmt.Errorf("failed to push %s after %d attempt(s): %w", ref, attempts, err)
	}

	log.Info().Str("ref", ref).Uint("attempts", attempts).Msg("Image pushed")
	s.publishEvent(events.ImagePushed, events.ImagePushedEvent{
		Ref:       ref,
		Registry:  registryURL,
		Attempts:  attempts,
		Timestamp: time.Now(),
	})
	return nil
}

// consumePushStream drains a push stream; registry errors only show up inside it
func consumePushStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read push output: %w", err)
		}
		if msg.Error != nil {
			return msg.Error
		}
	}
}

// Close closes the service and releases resources
func (s *ImageService) Close() error {
	return s.client.Close()
}

func (s *ImageService) publishEvent(eventType events.EventType, data interface{}) {
	if s.publisher == nil {
		return
	}

	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"payload": data},
	}

	if err := s.publisher.Publish(event); err != nil {
		log := logger.GetContainerLogger()
		log.Debug().Err(err).Str("type", string(eventType)).Msg("Failed to publish image event")
	}
}

func (s *ImageService) publishFailedEvent(ref, operation string, err error) {
	s.publishEvent(events.ImageFailed, events.ImageFailedEvent{
		Ref:       ref,
		Operation: operation,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}
