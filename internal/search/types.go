package search

import (
	"context"
	"fmt"

	"reticle/internal/detection"
)

// Product is one lookup result row.
type Product struct {
	ImageURL string `json:"image_url,omitempty"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

// Backend performs a lookup for a confirmed entity.
type Backend interface {
	Lookup(ctx context.Context, entity detection.Candidate) ([]Product, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, entity detection.Candidate) ([]Product, error)

// Lookup implements Backend.
func (f BackendFunc) Lookup(ctx context.Context, entity detection.Candidate) ([]Product, error) {
	return f(ctx, entity)
}

// Job identifies one dispatched lookup. A zero Generation marks a job that was
// never started because the dispatcher had shut down.
type Job struct {
	Entity     detection.Candidate
	Generation uint64
}

// Live reports whether the job was actually dispatched.
func (j Job) Live() bool { return j.Generation > 0 }

// Result is the outcome delivered to the listener for a current job.
type Result struct {
	Job      Job
	Products []Product
	Err      error
}

// Listener receives results on the poster's context.
type Listener func(Result)

// Poster runs closures on the serialized processing context.
type Poster interface {
	Post(fn func()) bool
}

// Placeholders returns the fallback product list shown when a lookup fails.
func Placeholders(n int) []Product {
	if n <= 0 {
		return nil
	}
	out := make([]Product, 0, n)
	for i := range n {
		out = append(out, Product{
			Title:    fmt.Sprintf("Product title %d", i),
			Subtitle: fmt.Sprintf("Product subtitle %d", i),
		})
	}
	return out
}
