package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDetection        = errors.New("detection failure")
	ErrSearch           = errors.New("search failure")
	ErrStale            = errors.New("stale result")
	ErrConfiguration    = errors.New("configuration error")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsUserVisible reports whether a failure has a consequence the user can see.
// Only search failures surface (as an empty or placeholder result list);
// detection hiccups and stale results heal on the next frame.
func IsUserVisible(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSearch)
}

// IsFatal reports whether err must abort startup.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
