package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"reticle/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and camera session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemon.Status
			if err := ctx.client().get(cmd.Context(), "/api/status", nil, &status); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(newPrinter(cmd.OutOrStdout()), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the latest confirmed entity and its search results",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result daemon.ResultResponse
			if err := ctx.client().get(cmd.Context(), "/api/result", nil, &result); err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}
			renderResult(newPrinter(cmd.OutOrStdout()), &result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	return cmd
}

func renderDaemonStatus(p *printer, status daemon.Status) {
	p.section("Daemon")
	running := toneError
	if status.Running {
		running = toneOK
	}
	p.rowf("Running", running, "pid %d", status.PID)
	p.row("Backend", toneInfo, status.Backend)
	p.row("Camera", toneInfo, status.Device)
	p.row("Hotplug", toneInfo, yesNo(status.Hotplug))
	p.row("Lookup cache", toneInfo, yesNo(status.Cache))
	p.row("Log", toneInfo, status.LogPath)
	p.blank()

	p.section("Session")
	state := status.Workflow.State
	p.rowf("State", stateTone(state), "%s (v%d, %s)", state, status.Workflow.Version, ago(status.Workflow.Since))
	session := status.Session
	if session == nil {
		p.row("Camera session", toneWarn, "none; waiting for camera")
		return
	}
	p.row("Session", toneInfo, session.SessionID)
	p.row("Mode", toneInfo, string(session.Mode))
	p.row("Auto search", toneInfo, yesNo(session.AutoSearch))
	p.rowf("Confirmation", toneInfo, "%.0f%%", session.Progress*100)
	p.rowf("Tracked objects", toneInfo, "%d (%d entrances)", session.Tracked, session.Entrances)
	pl := session.Pipeline
	p.rowf("Frames", toneInfo, "%d submitted, %d dropped, %d processed, %d failed, %d stale",
		pl.Submitted, pl.Dropped, pl.Processed, pl.Failed, pl.Stale)
	sr := session.Search
	p.rowf("Searches", toneInfo, "%d started, %d delivered, %d failed, %d stale",
		sr.Started, sr.Delivered, sr.Failed, sr.Stale)
	if session.LastError != "" {
		p.row("Last error", toneError, session.LastError)
	}
}

func renderResult(p *printer, result *daemon.ResultResponse) {
	p.section("Result")
	p.row("Kind", toneInfo, string(result.Kind))
	p.row("Entity", toneInfo, describeItem(result))
	if result.FrameSeq > 0 {
		p.rowf("Frame", toneInfo, "%d", result.FrameSeq)
	}
	if result.Error != "" {
		p.row("Search", toneWarn, result.Error)
	}
	if len(result.Products) == 0 {
		return
	}
	rows := make([][]string, 0, len(result.Products))
	for i, prod := range result.Products {
		rows = append(rows, []string{strconv.Itoa(i + 1), prod.Title, prod.Subtitle})
	}
	p.table([]string{"#", "Title", "Subtitle"}, rows, text.AlignRight)
}

func describeItem(result *daemon.ResultResponse) string {
	item := result.Item
	var parts []string
	switch {
	case item.Value != "":
		parts = append(parts, item.Value)
		if item.Format != "" {
			parts = append(parts, "("+item.Format+")")
		}
	case item.Label != "":
		parts = append(parts, item.Label)
	}
	if item.Category.Known() {
		parts = append(parts, "["+item.Category.DisplayName()+"]")
	}
	if result.TrackingID != nil {
		parts = append(parts, fmt.Sprintf("#%d", *result.TrackingID))
	}
	if len(parts) == 0 {
		return "unlabelled"
	}
	return strings.Join(parts, " ")
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}
