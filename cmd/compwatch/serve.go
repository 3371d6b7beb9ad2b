package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/metrics"
	"github.com/lynx-chain/compwatch/internal/service"
	"github.com/lynx-chain/compwatch/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var subscribeAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the watch service",
		Long: `Runs a long-lived service that manages many concurrent watches over an
HTTP API. With --subscribe, a live log subscription to the given emitter
address completes pending watches ahead of the next poll.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, "serve")
			log.Info("Starting compwatch service", "version", version, "build_time", buildTime)

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

			mgr := service.NewManager(client, seen, watcher.Options{
				WindowSize:           cfg.Watcher.WindowSize,
				PollInterval:         cfg.Watcher.PollInterval,
				MaxAttempts:          cfg.Watcher.MaxAttempts,
				TransientMaxInterval: cfg.Watcher.TransientMaxInterval,
				Commitment:           chain.CommitmentLevel(cfg.Watcher.Commitment),
				MaxLinesPerContainer: cfg.Watcher.MaxLinesPerContainer,
				CacheTTL:             cfg.Cache.TTL,
			}, log)
			apiServer := service.NewServer(cfg.API, mgr, log)

			var metricsServer *metrics.Server
			if cfg.Metrics.Enabled {
				metricsServer = metrics.NewServer(cfg.Metrics.Port)
				go func() {
					if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
						log.Error("Metrics server failed", "error", err)
					}
				}()
			}

			var sub *chain.Subscriber
			if subscribeAddr != "" {
				emitter, err := chain.ParseAddress(subscribeAddr)
				if err != nil {
					return err
				}
				sub = chain.NewSubscriber(cfg.Chain.WSURL, emitter,
					chain.CommitmentLevel(cfg.Watcher.Commitment), 256, log)
				if err := sub.Start(); err != nil {
					// Polling still covers every watch; live updates are
					// an optimization.
					log.Warn("Live log subscription unavailable", "error", err)
					sub = nil
				} else {
					go mgr.ConsumeNotifications(sub.Notifications())
				}
			}

			go func() {
				if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
					log.Error("API server failed", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if sub != nil {
				sub.Stop()
			}
			if err := apiServer.Stop(shutdownCtx); err != nil {
				log.Warn("API server shutdown failed", "error", err)
			}
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				log.Warn("Metrics server shutdown failed", "error", err)
			}
			return mgr.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&subscribeAddr, "subscribe", "", "emitter address to follow over the live log stream")

	return cmd
}
