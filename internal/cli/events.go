// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/noldarim/mcpsmith/internal/logger"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
)

// logPublisher records image lifecycle events in the log file
type logPublisher struct{}

func (logPublisher) Publish(event events.Event) error {
	l := logger.GetContainerLogger()
	e := l.Info()
	if event.Type == events.ImageFailed {
		e = l.Warn()
	}
	e.Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Time("event_time", event.Timestamp).
		Fields(event.Data).
		Msg("Image event")
	return nil
}
