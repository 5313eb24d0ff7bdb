// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPluginNotFound is returned when toggling an unknown plugin
var ErrPluginNotFound = errors.New("plugin not found")

// HookError wraps a failure raised by a plugin hook
type HookError struct {
	Plugin string
	Event  Event
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s failed in %s: %v", e.Plugin, e.Event, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// CircularDependencyError is returned when the dependency graph has a cycle.
// Plugin is where the cycle was detected; Path is the traversal that led there.
type CircularDependencyError struct {
	Plugin string
	Path   []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("circular dependency detected at plugin %s", e.Plugin)
	}
	return fmt.Sprintf("circular dependency detected at plugin %s: %s", e.Plugin, strings.Join(e.Path, " -> "))
}

// MissingDependencyError is returned when a plugin depends on a plugin that was not loaded
type MissingDependencyError struct {
	Plugin     string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("plugin %s depends on %s, which is not loaded", e.Plugin, e.Dependency)
}

// IsHookError reports whether err came from a plugin hook
func IsHookError(err error) bool {
	var hookErr *HookError
	return errors.As(err, &hookErr)
}
