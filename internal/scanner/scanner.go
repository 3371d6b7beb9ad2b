// Package scanner retrieves bounded windows of recent log containers for an
// emitter address, one page per poll.
package scanner

import (
	"context"
	"time"

	"github.com/lynx-chain/compwatch/internal/cache"
	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/metrics"
	"github.com/lynx-chain/compwatch/pkg/logger"
)

// LogSource lists recent containers for an address and fetches their
// content. *chain.Client satisfies it; tests substitute fakes.
type LogSource interface {
	SignaturesForAddress(ctx context.Context, addr chain.Address, limit int) ([]chain.SignatureInfo, error)
	TransactionLogs(ctx context.Context, signature string, commitment chain.CommitmentLevel) (chain.ContainerContent, error)
}

// Config bounds the cost of one poll.
type Config struct {
	// WindowSize is the number of recent containers listed per poll. It
	// trades recall during bursts against per-poll cost.
	WindowSize int
	// Commitment is passed through to the node when fetching content.
	Commitment chain.CommitmentLevel
	// MaxLinesPerContainer caps how many lines of one container are kept.
	// The node does not bound container size; the scan must.
	MaxLinesPerContainer int
	// CacheTTL bounds how long scanned container keys are remembered.
	CacheTTL time.Duration
}

func (c *Config) withDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 50
	}
	if c.Commitment == "" {
		c.Commitment = chain.CommitmentConfirmed
	}
	if c.MaxLinesPerContainer <= 0 {
		c.MaxLinesPerContainer = 512
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
}

// Container is one transaction's worth of log lines, identified by its
// signature.
type Container struct {
	ID    string
	Lines []string
}

// Scanner pages through the recent log stream of an emitter.
type Scanner struct {
	source LogSource
	seen   cache.Cache
	cfg    Config
	log    *logger.Logger
}

// New creates a scanner. seen may be nil to disable container dedup across
// attempts.
func New(source LogSource, seen cache.Cache, cfg Config, log *logger.Logger) *Scanner {
	cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Scanner{source: source, seen: seen, cfg: cfg, log: log}
}

// FetchRecent returns the newest containers for emitter, newest first, with
// content fetched in a second round trip per container. A listing failure is
// returned to the caller, whose retry loop absorbs it; a single container
// fetch failure only skips that container. dedupeKey scopes the seen-cache
// to one watch so that concurrent watches never shadow each other.
func (s *Scanner) FetchRecent(ctx context.Context, emitter chain.Address, dedupeKey string) ([]Container, error) {
	infos, err := s.source.SignaturesForAddress(ctx, emitter, s.cfg.WindowSize)
	if err != nil {
		return nil, err
	}

	containers := make([]Container, 0, len(infos))
	for _, info := range infos {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		key := dedupeKey + ":" + info.Signature
		if s.seen != nil {
			seen, err := s.seen.Seen(ctx, key)
			if err == nil && seen {
				continue
			}
		}

		content, err := s.source.TransactionLogs(ctx, info.Signature, s.cfg.Commitment)
		if err != nil {
			metrics.ContainerFetchErrors.Inc()
			s.log.Debug("Skipping container after fetch failure",
				"signature", info.Signature, "error", err)
			continue
		}
		if !content.Found {
			// Not yet visible at this commitment level; retry next poll.
			continue
		}

		lines := content.LogLines
		if len(lines) > s.cfg.MaxLinesPerContainer {
			s.log.Warn("Truncating oversized container",
				"signature", info.Signature,
				"lines", len(lines),
				"ceiling", s.cfg.MaxLinesPerContainer)
			lines = lines[:s.cfg.MaxLinesPerContainer]
		}

		if s.seen != nil {
			// Content at or above confirmed commitment is immutable, so a
			// scanned container never needs a second look for this watch.
			_ = s.seen.Mark(ctx, key, s.cfg.CacheTTL)
		}

		metrics.ContainersScanned.Inc()
		containers = append(containers, Container{ID: info.Signature, Lines: lines})
	}

	return containers, nil
}
