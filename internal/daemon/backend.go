package daemon

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"reticle/internal/config"
	"reticle/internal/detection"
	"reticle/internal/logging"
	"reticle/internal/search"
	"reticle/internal/services"
)

// Backends is the lookup stack built from configuration.
type Backends struct {
	Lookup search.Backend
	// Cache is nil when caching is disabled or Redis is unreachable.
	Cache *search.CachingBackend
	redis *redis.Client
}

// Close releases the Redis connection, if any.
func (b *Backends) Close() error {
	if b == nil || b.redis == nil {
		return nil
	}
	err := b.redis.Close()
	b.redis = nil
	return err
}

// BuildBackends selects the lookup backend for the configured mode. Barcode
// sessions resolve locally; other modes call the search endpoint, or fail
// every lookup so the session shows fallback results when none is set. An
// unreachable cache is logged and skipped.
func BuildBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Backends {
	if logger == nil {
		logger = logging.NewNop()
	}
	out := &Backends{}
	switch {
	case cfg.Detection.Mode == config.ModeBarcode:
		out.Lookup = search.BarcodeBackend{Delay: cfg.BarcodeResultDelay()}
	case strings.TrimSpace(cfg.Search.Endpoint) != "":
		out.Lookup = search.NewHTTPBackend(cfg.Search.Endpoint, cfg.Search.APIKey, nil, cfg.SearchTimeout())
	default:
		out.Lookup = search.BackendFunc(func(context.Context, detection.Candidate) ([]search.Product, error) {
			return nil, services.Wrap(services.ErrSearch, "search", "lookup", "no search endpoint configured", nil)
		})
	}

	if !cfg.Cache.Enabled {
		return out
	}
	rdb, err := search.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
	if err != nil {
		logging.WarnWithContext(logger, "lookup cache unavailable", "cache_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check cache.redis_addr or disable the cache"),
			logging.String(logging.FieldImpact, "every lookup goes to the search backend"),
		)
		return out
	}
	out.redis = rdb
	out.Cache = search.NewCachingBackend(rdb, cfg.CacheTTL(), out.Lookup, cfg.Cache.Namespace)
	out.Lookup = out.Cache
	return out
}

func (d *Daemon) buildBackend(ctx context.Context) search.Backend {
	b := BuildBackends(ctx, d.cfg, d.logger)
	d.cache = b.Cache
	d.rdb = b.redis
	return b.Lookup
}
