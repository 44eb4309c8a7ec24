package engine

import (
	"fmt"
	"strings"
	"time"

	"reticle/internal/config"
	"reticle/internal/detection"
	"reticle/internal/notifications"
	"reticle/internal/selection"
	"reticle/internal/services"
	"reticle/internal/workflow"
)

// Mode selects how candidates are chosen and confirmed for a session.
type Mode string

const (
	// ModeMultiObject selects the first tracked object near the overlay center
	// and confirms it after the confirmation window.
	ModeMultiObject Mode = config.ModeMultiObject
	// ModeProminentObject considers only the most prominent object and selects
	// it when it touches the reticle.
	ModeProminentObject Mode = config.ModeProminentObject
	// ModeBarcode selects the barcode under the overlay center and confirms it
	// once it is large enough.
	ModeBarcode Mode = config.ModeBarcode
)

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(value))); m {
	case ModeMultiObject, ModeProminentObject, ModeBarcode:
		return m, nil
	case "":
		return ModeMultiObject, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "engine", "parse mode", fmt.Sprintf("unknown detection mode %q", value), nil)
	}
}

// Rule returns the selection rule used by the mode.
func (m Mode) Rule() selection.Rule {
	switch m {
	case ModeProminentObject:
		return selection.RuleReticleOverlap
	case ModeBarcode:
		return selection.RuleContainsCenter
	default:
		return selection.RuleProximity
	}
}

// Options configures a session.
type Options struct {
	Mode Mode
	// AutoSearch dispatches the lookup as soon as a candidate is confirmed.
	// Barcode sessions always search automatically.
	AutoSearch             bool
	Overlay                detection.Overlay
	SelectionDistance      float64
	Classification         bool
	BarcodeMinWidthPercent float64
	ConfirmationWindow     time.Duration
	GraceFrames            int
	PlaceholderResults     int
	SearchTimeout          time.Duration
	LoopBuffer             int
}

// OptionsFromConfig derives session options from configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, services.Wrap(services.ErrConfiguration, "engine", "options", "config is nil", nil)
	}
	mode, err := ParseMode(cfg.Detection.Mode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Mode:                   mode,
		AutoSearch:             cfg.AutoSearch(),
		Overlay:                detection.Overlay{Width: cfg.Camera.OverlayWidth, Height: cfg.Camera.OverlayHeight},
		SelectionDistance:      cfg.Detection.SelectionDistancePx,
		Classification:         cfg.Detection.ClassificationEnabled,
		BarcodeMinWidthPercent: cfg.Detection.BarcodeMinWidthPercent,
		ConfirmationWindow:     cfg.ConfirmationWindow(),
		GraceFrames:            cfg.Confirmation.GraceFrames,
		PlaceholderResults:     cfg.Search.PlaceholderResults,
		SearchTimeout:          cfg.SearchTimeout(),
	}, nil
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects the time source used for confirmation and transitions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNotifier sets the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id = strings.TrimSpace(id); id != "" {
			e.sessionID = id
		}
	}
}

// WithMachine shares a state machine across sessions so observers survive a
// camera being replaced. The machine must be in NotStarted when Start runs.
func WithMachine(m *workflow.StateMachine) Option {
	return func(e *Engine) {
		if m != nil {
			e.machine = m
		}
	}
}
