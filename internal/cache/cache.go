// Package cache tracks which containers a watch has already scanned, so
// repeated poll windows skip content that cannot change. It is purely an
// optimization: a watch stays correct with no cache at all.
package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_cache_hits_total",
		Help: "Total number of seen-container cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_cache_misses_total",
		Help: "Total number of seen-container cache misses",
	})

	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compwatch_cache_errors_total",
		Help: "Total number of seen-container cache errors",
	})
)

// Cache remembers scanned container keys for a bounded time.
type Cache interface {
	// Seen reports whether key was marked and has not expired.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key for ttl. A zero ttl means no expiry.
	Mark(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}
