// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"

	"github.com/noldarim/mcpsmith/internal/checkpoint"
	"github.com/noldarim/mcpsmith/internal/pipeline"
	"github.com/noldarim/mcpsmith/internal/plugins"
	"github.com/noldarim/mcpsmith/pkg/containers/events"
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
)

// progressPrinter renders stage transitions as one line each
type progressPrinter struct {
	out     io.Writer
	verbose bool
}

func (p *progressPrinter) onProgress(pr pipeline.Progress) {
	if pr.Build != nil {
		p.buildEvent(*pr.Build)
		return
	}

	st := pr.Stage
	counter := dimStyle.Render(fmt.Sprintf("[%d/%d]", st.Index, st.Total))
	switch st.Status {
	case pipeline.StageStatusRunning:
		fmt.Fprintf(p.out, "%s %s %s\n", accentStyle.Render("▸"), counter, st.Name)
	case pipeline.StageStatusCompleted:
		fmt.Fprintf(p.out, "  %s %s %s\n", successStyle.Render("✓"), st.Name, dimStyle.Render(formatDuration(st.Duration)))
	case pipeline.StageStatusFailed:
		fmt.Fprintf(p.out, "  %s %s: %s\n", failStyle.Render("✗"), st.Name, st.Error)
	case pipeline.StageStatusSkipped:
		fmt.Fprintf(p.out, "%s %s %s %s\n", dimStyle.Render("-"), counter, st.Name, dimStyle.Render("("+pr.Message+")"))
	}
}

func (p *progressPrinter) buildEvent(ev events.BuildEvent) {
	switch ev.Type {
	case events.BuildStep:
		fmt.Fprintf(p.out, "    %s %s\n", dimStyle.Render(fmt.Sprintf("step %d/%d", ev.Step, ev.Total)), ev.Message)
	case events.BuildError:
		fmt.Fprintf(p.out, "    %s\n", failStyle.Render(ev.Message))
	case events.BuildOutput:
		if p.verbose {
			fmt.Fprintf(p.out, "    %s\n", dimStyle.Render(strings.TrimRight(ev.Message, "\n")))
		}
	}
}

func printResult(out io.Writer, res *pipeline.Result) {
	fmt.Fprintln(out)
	if res.Success {
		fmt.Fprintf(out, "%s %s\n", successStyle.Render("✓"), headerStyle.Render("Build completed"))
	} else {
		fmt.Fprintf(out, "%s %s %s\n", failStyle.Render("✗"), headerStyle.Render("Build failed at"), res.FailedStage)
	}

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), valueStyle.Render(value))
		}
	}
	field("run", res.RunID)
	field("code", string(res.Code))
	field("image", res.ImageID)
	field("tags", strings.Join(res.Tags, ", "))
	field("pushed", strings.Join(res.Pushed, ", "))
	field("duration", formatDuration(res.Duration))

	printList(out, "Generated", successStyle, res.GeneratedFiles)
	printList(out, "Rolled back", warnStyle, res.RolledBack)
	printList(out, "Warnings", warnStyle, res.Warnings)
	printList(out, "Errors", failStyle, res.Errors)
}

func printList(out io.Writer, title string, style lipgloss.Style, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", headerStyle.Render(title))
	for _, item := range items {
		fmt.Fprintf(out, "  %s %s\n", style.Render("•"), item)
	}
}

func printResumeStatus(out io.Writer, status checkpoint.ResumeStatus) {
	if status.Checkpoint == nil {
		fmt.Fprintln(out, dimStyle.Render("No checkpoint found"))
		return
	}

	cp := status.Checkpoint
	fmt.Fprintf(out, "%s\n", headerStyle.Render("Checkpoint"))
	fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("run       "), valueStyle.Render(cp.RunID))
	fmt.Fprintf(out, "  %s %d/%d %s\n", labelStyle.Render("stage     "), cp.Stage, len(pipeline.StageNames), cp.StageName)
	fmt.Fprintf(out, "  %s %s ago\n", labelStyle.Render("saved     "), formatDuration(status.Age))
	fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("files     "), len(cp.GeneratedFiles))
	if cp.ImageID != "" {
		fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("image     "), cp.ImageID)
	}

	if status.CanResume {
		fmt.Fprintf(out, "\n%s %s\n", successStyle.Render("✓"), status.Message)
	} else {
		fmt.Fprintf(out, "\n%s %s\n", warnStyle.Render("!"), status.Message)
	}
}

func printRollback(out io.Writer, report pipeline.RollbackReport) {
	if len(report.Removed) == 0 && !report.ImageRemoved && len(report.Warnings) == 0 {
		fmt.Fprintln(out, dimStyle.Render("Nothing to roll back"))
		return
	}
	printList(out, "Removed", successStyle, report.Removed)
	if report.ImageRemoved {
		fmt.Fprintf(out, "  %s image\n", successStyle.Render("•"))
	}
	printList(out, "Warnings", warnStyle, report.Warnings)
}

// pluginTable lists plugins in load order followed by the ones that failed to load
func pluginTable(ordered, failed []*plugins.LoadedPlugin) string {
	rows := lo.Map(append(ordered, failed...), func(lp *plugins.LoadedPlugin, _ int) []string {
		version, hooks := "", ""
		if lp.Plugin != nil {
			version = lp.Plugin.Meta.Version
			hooks = strings.Join(lo.Map(lp.Events(), func(e plugins.Event, _ int) string { return string(e) }), ", ")
		}
		status := lp.State.String()
		if !lp.Enabled {
			status += " (disabled)"
		}
		if lp.Err != nil {
			status += ": " + lp.Err.Error()
		}
		return []string{lp.Name, version, status, lp.Source, hooks}
	})

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("NAME", "VERSION", "STATE", "SOURCE", "HOOKS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Rows(rows...).
		String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
