package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lynx-chain/compwatch/config"
	"github.com/lynx-chain/compwatch/internal/cache"
	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/watcher"
)

func newAwaitCmd() *cobra.Command {
	var (
		pollInterval time.Duration
		maxAttempts  int
		windowSize   int
		commitment   string
	)

	cmd := &cobra.Command{
		Use:   "await <handle> <emitter>",
		Short: "Wait for the completion event of one computation request",
		Long: `Polls the emitter's recent transaction logs until the completion event
carrying the given handle appears, then prints the transaction it was found
in. The handle accepts decimal or 0x-prefixed hex.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, "await")

			h, err := strconv.ParseUint(args[0], 0, 64)
			if err != nil {
				return fmt.Errorf("invalid handle %q: %w", args[0], err)
			}
			emitter, err := chain.ParseAddress(args[1])
			if err != nil {
				return err
			}

			// Flag overrides beat file config.
			if pollInterval > 0 {
				cfg.Watcher.PollInterval = pollInterval
			}
			if maxAttempts > 0 {
				cfg.Watcher.MaxAttempts = maxAttempts
			}
			if windowSize > 0 {
				cfg.Watcher.WindowSize = windowSize
			}
			if commitment != "" {
				cfg.Watcher.Commitment = commitment
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			client, err := chain.NewClient(chain.Config{
				RPCURL:         cfg.Chain.RPCURL,
				Timeout:        cfg.Chain.Timeout,
				RequestsPerSec: cfg.Chain.RequestsPerSec,
			}, log)
			if err != nil {
				return err
			}

			seen, err := buildCache(cfg)
			if err != nil {
				return err
			}
			if seen != nil {
				defer seen.Close()
			}

			w := watcher.New(client, seen, watcher.Options{
				WindowSize:           cfg.Watcher.WindowSize,
				PollInterval:         cfg.Watcher.PollInterval,
				MaxAttempts:          cfg.Watcher.MaxAttempts,
				TransientMaxInterval: cfg.Watcher.TransientMaxInterval,
				Commitment:           chain.CommitmentLevel(cfg.Watcher.Commitment),
				MaxLinesPerContainer: cfg.Watcher.MaxLinesPerContainer,
				CacheTTL:             cfg.Cache.TTL,
			}, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out, err := w.Await(ctx, h, emitter)
			var timeoutErr *watcher.TimeoutError
			switch {
			case err == nil:
				cmd.Printf("found in %s after %d attempt(s)\n", out.ContainerID, out.Counters.Attempts)
				return nil
			case errors.As(err, &timeoutErr):
				return fmt.Errorf("%w (%d empty scans, %d transient errors)",
					timeoutErr, out.Counters.EmptyScans, out.Counters.TransientErrors)
			default:
				return err
			}
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "delay between poll attempts")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "hard retry ceiling")
	cmd.Flags().IntVar(&windowSize, "window-size", 0, "containers scanned per attempt")
	cmd.Flags().StringVar(&commitment, "commitment", "", "commitment level (processed, confirmed, finalized)")

	return cmd
}

// buildCache constructs the configured seen-container cache, or nil when
// disabled.
func buildCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Cache.RedisAddress,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.RedisPrefix,
		})
	default:
		return cache.NewMemory(), nil
	}
}
