package engine

import (
	"math"
	"time"

	"reticle/internal/pipeline"
	"reticle/internal/search"
	"reticle/internal/workflow"
)

// StatusSummary represents lightweight session diagnostics.
type StatusSummary struct {
	SessionID  string         `json:"session_id"`
	Mode       Mode           `json:"mode"`
	AutoSearch bool           `json:"auto_search"`
	Running    bool           `json:"running"`
	State      workflow.State `json:"state"`
	Version    uint64         `json:"version"`
	Since      time.Time      `json:"since"`
	Progress   float64        `json:"progress"`
	Tracked    int            `json:"tracked"`
	Entrances  uint64         `json:"entrances"`
	Discarded  uint64         `json:"discarded"`
	Pipeline   pipeline.Stats `json:"pipeline"`
	Search     search.Stats   `json:"search"`
	LastError  string         `json:"last_error,omitempty"`
}

// Status returns the latest session information. Safe for concurrent use.
func (e *Engine) Status() StatusSummary {
	snap := e.machine.Snapshot()
	summary := StatusSummary{
		SessionID:  e.sessionID,
		Mode:       e.opts.Mode,
		AutoSearch: e.opts.AutoSearch,
		Running:    e.started.Load(),
		State:      snap.State,
		Version:    snap.Version,
		Since:      snap.Since,
		Progress:   math.Float64frombits(e.progress.Load()),
		Tracked:    int(e.tracked.Load()),
		Entrances:  e.entrances.Load(),
		Discarded:  e.discarded.Load(),
		Pipeline:   e.pipeline.Stats(),
		Search:     e.dispatcher.Stats(),
	}
	e.mu.Lock()
	if e.lastError != nil {
		summary.LastError = e.lastError.Error()
	}
	e.mu.Unlock()
	return summary
}
