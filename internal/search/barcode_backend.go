package search

import (
	"context"
	"strings"
	"time"

	"reticle/internal/detection"
)

// BarcodeBackend resolves a barcode entity to its decoded fields locally. The
// delay keeps the session in SEARCHING long enough for the UI to show progress.
type BarcodeBackend struct {
	Delay time.Duration
}

// Lookup returns the raw value and format rows after Delay.
func (b BarcodeBackend) Lookup(ctx context.Context, entity detection.Candidate) ([]Product, error) {
	if b.Delay > 0 {
		timer := time.NewTimer(b.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	format := strings.TrimSpace(entity.Item.Format)
	if format == "" {
		format = "unknown"
	}
	return []Product{
		{Title: "Raw Value", Subtitle: entity.Item.Value},
		{Title: "Format", Subtitle: format},
	}, nil
}
