// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Log         LogConfig         `mapstructure:"log"`
	Project     ProjectConfig     `mapstructure:"project"`
	Build       BuildConfig       `mapstructure:"build"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Container   ContainerConfig   `mapstructure:"container"`
	Plugins     PluginsConfig     `mapstructure:"plugins"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// LogConfig holds comprehensive logging configuration
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file" or "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`   // For file output
	Rotate  LogRotateConfig `mapstructure:"rotate"` // For file output
}

// LogRotateConfig defines log rotation settings
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs
type LogContextConfig struct {
	IncludeCaller    bool `mapstructure:"include_caller"`
	IncludeTimestamp bool `mapstructure:"include_timestamp"`
	IncludeStack     bool `mapstructure:"include_stack"`
}

// LogSamplingConfig defines log sampling settings
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// ProjectConfig describes the server being generated.
type ProjectConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`
	WorkDir     string `mapstructure:"work_dir"`    // Root for checkpoint and generated artifacts
	ModulesDir  string `mapstructure:"modules_dir"` // Relative to WorkDir unless absolute
	OutputDir   string `mapstructure:"output_dir"`  // Relative to WorkDir
}

// BuildConfig controls artifact generation and the image build.
type BuildConfig struct {
	DryRun     bool              `mapstructure:"dry_run"`
	ImageName  string            `mapstructure:"image_name"`
	Tags       []string          `mapstructure:"tags"`
	Dockerfile string            `mapstructure:"dockerfile"`
	Port       int               `mapstructure:"port"`
	Transport  string            `mapstructure:"transport"` // "stdio" or "http"
	BaseImages map[string]string `mapstructure:"base_images"`
	BuildArgs  map[string]string `mapstructure:"build_args"`
}

// RegistryConfig holds push settings.
type RegistryConfig struct {
	URL        string        `mapstructure:"url"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Push       bool          `mapstructure:"push"`
	Retries    uint          `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ContainerConfig holds container engine settings.
type ContainerConfig struct {
	DockerHost string `mapstructure:"docker_host"`
}

// PluginsConfig holds plugin discovery and per-plugin settings.
type PluginsConfig struct {
	Dir      string                    `mapstructure:"dir"`
	Builtins []string                  `mapstructure:"builtins"`
	Disabled []string                  `mapstructure:"disabled"`
	Settings map[string]map[string]any `mapstructure:"settings"`
}

// CredentialsConfig controls how missing credentials are treated.
type CredentialsConfig struct {
	Strict      bool `mapstructure:"strict"`      // Missing required credential fails the run
	Interactive bool `mapstructure:"interactive"` // Prompt for values not found in the environment
}

// TelemetryConfig controls OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// NewConfig creates a new AppConfig by reading from a file, environment variables,
// and applying defaults.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mcpsmith")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.mcpsmith")
	}

	v.SetEnvPrefix("MCPSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file. It's okay if it doesn't exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath != "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *AppConfig {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() AppConfig {
	return AppConfig{
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "./.mcpsmith/logs/mcpsmith.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  20,
						MaxBackups: 3,
						MaxAgeDays: 14,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: false, // Progress output owns the terminal
				},
			},
			Levels: map[string]string{
				"pipeline":    "INFO",
				"plugins":     "INFO",
				"checkpoint":  "INFO",
				"modules":     "INFO",
				"credentials": "INFO",
				"container":   "INFO",
				"cli":         "INFO",
			},
			Context: LogContextConfig{
				IncludeCaller:    false,
				IncludeTimestamp: true,
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		Project: ProjectConfig{
			Name:       "mcp-server",
			Version:    "0.1.0",
			WorkDir:    ".",
			ModulesDir: ".",
			OutputDir:  "dist",
		},
		Build: BuildConfig{
			Dockerfile: "Dockerfile",
			Port:       8080,
			Transport:  "stdio",
			BaseImages: map[string]string{
				"python":     "python:3.12-slim",
				"javascript": "node:20-slim",
				"typescript": "node:20-slim",
				"go":         "golang:1.24-alpine",
			},
		},
		Registry: RegistryConfig{
			Retries:    3,
			RetryDelay: 2 * time.Second,
		},
		Container: ContainerConfig{
			DockerHost: "",
		},
		Plugins: PluginsConfig{
			Dir: "./plugins",
		},
		Credentials: CredentialsConfig{
			Strict:      false,
			Interactive: false,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "mcpsmith",
		},
	}
}

func (c *AppConfig) expandPaths() {
	c.Project.WorkDir = expandPath(c.Project.WorkDir)
	c.Project.ModulesDir = expandPath(c.Project.ModulesDir)
	c.Plugins.Dir = expandPath(c.Plugins.Dir)
	if c.Container.DockerHost != "" {
		c.Container.DockerHost = expandPath(c.Container.DockerHost)
	}
}

// expandPath expands ~ to home directory and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *AppConfig) Validate() error {
	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Project.Name == "" {
		return errors.New("project.name is required")
	}
	if c.Project.OutputDir == "" {
		return errors.New("project.output_dir is required")
	}
	if filepath.IsAbs(c.Project.OutputDir) {
		return fmt.Errorf("project.output_dir must be relative to the work dir, got: %s", c.Project.OutputDir)
	}

	if c.Build.Dockerfile == "" {
		return errors.New("build.dockerfile is required")
	}
	if c.Build.Port <= 0 || c.Build.Port > 65535 {
		return fmt.Errorf("invalid build port: %d", c.Build.Port)
	}
	if c.Build.Transport != "stdio" && c.Build.Transport != "http" {
		return fmt.Errorf("build.transport must be 'stdio' or 'http', got: %s", c.Build.Transport)
	}

	if c.Registry.Push && c.Registry.URL == "" {
		return errors.New("registry.url is required when registry.push is enabled")
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}

// ImageTag returns the primary tag the image is built with.
func (c *AppConfig) ImageTag() string {
	name := c.Build.ImageName
	if name == "" {
		name = c.Project.Name
	}
	version := c.Project.Version
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("%s:%s", name, version)
}

// ModulesPath returns the absolute-or-workdir-relative discovery root.
func (c *AppConfig) ModulesPath() string {
	if filepath.IsAbs(c.Project.ModulesDir) {
		return c.Project.ModulesDir
	}
	return filepath.Join(c.Project.WorkDir, c.Project.ModulesDir)
}
