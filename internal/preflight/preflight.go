package preflight

import (
	"context"
	"strings"

	"reticle/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir))

	switch cfg.Detection.Backend {
	case config.BackendReplay:
		if strings.TrimSpace(cfg.Detection.ReplayScript) != "" {
			results = append(results, CheckReadableFile("Replay script", cfg.Detection.ReplayScript))
		}
	case config.BackendCloudVision:
		results = append(results, CheckDevice(cfg.Camera.Device))
		if strings.TrimSpace(cfg.Vision.CredentialsFile) != "" {
			results = append(results, CheckReadableFile("Vision credentials", cfg.Vision.CredentialsFile))
		}
	}

	if strings.TrimSpace(cfg.Search.Endpoint) != "" {
		results = append(results, CheckSearchEndpoint(ctx, cfg.Search.Endpoint, cfg.Search.APIKey))
	}

	if cfg.Cache.Enabled {
		results = append(results, CheckRedis(ctx, cfg.Cache))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
