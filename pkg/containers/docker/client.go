// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"

	"github.com/noldarim/mcpsmith/pkg/containers/models"
)

// ClientInterface defines what we need from Docker
type ClientInterface interface {
	BuildImage(ctx context.Context, opts models.BuildOptions) (io.ReadCloser, error)
	InspectImage(ctx context.Context, ref string) (*models.Image, error)
	TagImage(ctx context.Context, source string, target string) error
	PushImage(ctx context.Context, ref string, auth *models.RegistryAuth) (io.ReadCloser, error)
	RemoveImage(ctx context.Context, imageID string, force bool) error
	Close() error
}

// Client implements ClientInterface using real Docker
type Client struct {
	docker *client.Client
}

// Compile-time check that Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Docker client using default environment settings
func NewClient() (*Client, error) {
	return NewClientWithHost("")
}

// NewClientWithHost creates a new Docker client with a specific host
// If dockerHost is empty, uses environment variables (FromEnv)
func NewClientWithHost(dockerHost string) (*Client, error) {
	var opts []client.Opt

	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	} else {
		opts = append(opts, client.FromEnv)
	}

	opts = append(opts, client.WithAPIVersionNegotiation())

	dockerClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Client{
		docker: dockerClient,
	}, nil
}

// BuildImage sends the context directory to the engine and returns the raw
// JSON message stream. The caller must close the returned reader.
func (c *Client) BuildImage(ctx context.Context, opts models.BuildOptions) (io.ReadCloser, error) {
	buildContext, err := ContextArchive(opts.ContextDir, opts.Exclude)
	if err != nil {
		return nil, err
	}

	buildArgs := make(map[string]*string, len(opts.BuildArgs))
	for key, value := range opts.BuildArgs {
		v := value
		buildArgs[key] = &v
	}

	resp, err := c.docker.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:        opts.Tags,
		Dockerfile:  filepath.ToSlash(opts.Dockerfile),
		Labels:      opts.Labels,
		BuildArgs:   buildArgs,
		NoCache:     opts.NoCache,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start image build: %w", err)
	}

	return resp.Body, nil
}

// InspectImage resolves a tag or ID to image metadata
func (c *Client) InspectImage(ctx context.Context, ref string) (*models.Image, error) {
	resp, err := c.docker.ImageInspect(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	var labels map[string]string
	if resp.Config != nil {
		labels = resp.Config.Labels
	}

	createdTime, _ := time.Parse(time.RFC3339Nano, resp.Created)

	return &models.Image{
		ID:        resp.ID,
		Tags:      resp.RepoTags,
		Size:      resp.Size,
		Labels:    labels,
		CreatedAt: createdTime,
	}, nil
}

// TagImage adds target as a reference to source
func (c *Client) TagImage(ctx context.Context, source string, target string) error {
	if err := c.docker.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", source, target, err)
	}
	return nil
}

// PushImage starts a push and returns the JSON message stream. The caller must
// close the returned reader and inspect it for errors.
func (c *Client) PushImage(ctx context.Context, ref string, auth *models.RegistryAuth) (io.ReadCloser, error) {
	opts := image.PushOptions{}
	if auth != nil {
		encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      auth.Username,
			Password:      auth.Password,
			ServerAddress: auth.ServerAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry auth: %w", err)
		}
		opts.RegistryAuth = encoded
	}

	body, err := c.docker.ImagePush(ctx, ref, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to push %s: %w", ref, err)
	}
	return body, nil
}

// RemoveImage removes an image
func (c *Client) RemoveImage(ctx context.Context, imageID string, force bool) error {
	_, err := c.docker.ImageRemove(ctx, imageID, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			// Already gone is not an error for idempotency
			return nil
		}
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}

// Close closes the Docker client connection
func (c *Client) Close() error {
	return c.docker.Close()
}

// ContextArchive packs dir into an in-memory tar stream suitable for ImageBuild.
// Top-level entries named in exclude are skipped along with their contents.
func ContextArchive(dir string, exclude []string) (io.Reader, error) {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[filepath.Clean(name)] = true
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if skip[rel] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			// Sockets, devices and symlinks are not part of a build context
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to create tar header for %s: %w", path, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer file.Close()

		if _, err := io.Copy(tw, file); err != nil {
			return fmt.Errorf("failed to write %s to tar: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive build context %s: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}

	return &buf, nil
}
