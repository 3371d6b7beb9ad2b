// Package watcher correlates a pending computation request with the
// completion event that reports it, by polling the emitter's recent log
// stream until the event appears or the attempt budget runs out.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/lynx-chain/compwatch/internal/cache"
	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/event"
	"github.com/lynx-chain/compwatch/internal/handle"
	"github.com/lynx-chain/compwatch/internal/metrics"
	"github.com/lynx-chain/compwatch/internal/scanner"
	"github.com/lynx-chain/compwatch/pkg/logger"
)

// Options tunes one watch. The zero value gets the documented defaults.
type Options struct {
	// WindowSize is the number of recent containers scanned per attempt.
	WindowSize int
	// PollInterval separates consecutive attempts.
	PollInterval time.Duration
	// MaxAttempts is the hard retry ceiling.
	MaxAttempts int
	// TransientMaxInterval caps the backoff applied after failed scans.
	TransientMaxInterval time.Duration
	// Commitment is how committed fetched container content must be.
	Commitment chain.CommitmentLevel
	// MaxLinesPerContainer bounds decode cost for a single container.
	MaxLinesPerContainer int
	// CacheTTL bounds how long scanned container keys stay deduplicated.
	CacheTTL time.Duration
}

// Outcome is the terminal result of a watch.
type Outcome struct {
	// Found reports whether the completion event was located.
	Found bool
	// ContainerID identifies the container the event was found in.
	ContainerID string
	// Counters describes how the attempt budget was spent.
	Counters Counters
}

// TimeoutError reports that a watch exhausted its attempts without a match.
// It says nothing about the computation itself: absence of the event is an
// unknown outcome, not a failure signal.
type TimeoutError struct {
	Handle   uint64
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no completion event for handle %#x after %d attempts", e.Handle, e.Attempts)
}

// Watcher locates completion events for pending requests. It holds no
// per-watch state; concurrent Await calls are independent.
type Watcher struct {
	scanner *scanner.Scanner
	decoder event.Decoder
	policy  RetryPolicy
	log     *logger.Logger
}

// New builds a watcher over the given log source. seen may be nil to
// disable cross-attempt container dedup.
func New(source scanner.LogSource, seen cache.Cache, opts Options, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	policy := RetryPolicy{
		MaxAttempts:          opts.MaxAttempts,
		PollInterval:         opts.PollInterval,
		TransientMaxInterval: opts.TransientMaxInterval,
	}
	policy.withDefaults()

	sc := scanner.New(source, seen, scanner.Config{
		WindowSize:           opts.WindowSize,
		Commitment:           opts.Commitment,
		MaxLinesPerContainer: opts.MaxLinesPerContainer,
		CacheTTL:             opts.CacheTTL,
	}, log)

	return &Watcher{
		scanner: sc,
		decoder: event.NewDecoder(event.FinalizeComputationDiscriminator),
		policy:  policy,
		log:     log,
	}
}

// Await polls until the completion event for (h, emitter) appears, the
// attempt budget is exhausted, or ctx is cancelled. On exhaustion the
// returned error is a *TimeoutError; cancellation surfaces ctx.Err(). A
// wall-clock deadline is expressed through ctx as usual.
func (w *Watcher) Await(ctx context.Context, h uint64, emitter chain.Address) (Outcome, error) {
	handleKey, err := handle.Encode(h, handle.Width)
	if err != nil {
		return Outcome{}, err
	}
	emitterKey := emitter.Bytes()
	dedupeKey := fmt.Sprintf("%016x@%s", h, emitter)

	log := w.log.With("handle", fmt.Sprintf("%#x", h), "emitter", emitter.String())

	metrics.ActiveWatches.Inc()
	defer metrics.ActiveWatches.Dec()

	sched := newSchedule(w.policy)
	var counters Counters

	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			counters.Attempts = attempt - 1
			return Outcome{Counters: counters}, err
		}
		counters.Attempts = attempt

		start := time.Now()
		containers, scanErr := w.scanner.FetchRecent(ctx, emitter, dedupeKey)
		metrics.ScanDuration.Observe(time.Since(start).Seconds())

		if scanErr == nil {
			for _, c := range containers {
				for _, line := range c.Lines {
					cand, ok := w.decoder.Decode(line)
					if !ok {
						continue
					}
					if Match(cand, handleKey, emitterKey) {
						metrics.PollAttempts.WithLabelValues("match").Inc()
						metrics.Matches.Inc()
						log.Info("Completion event located",
							"container", c.ID, "attempt", attempt)
						return Outcome{
							Found:       true,
							ContainerID: c.ID,
							Counters:    counters,
						}, nil
					}
				}
			}
		}

		// Both a clean-but-empty scan and a failed scan mean "keep
		// waiting"; they differ only in pacing and in the counters.
		transient := scanErr != nil
		if transient {
			if ctx.Err() != nil {
				return Outcome{Counters: counters}, ctx.Err()
			}
			counters.TransientErrors++
			metrics.PollAttempts.WithLabelValues("error").Inc()
			log.Warn("Scan attempt failed", "attempt", attempt, "error", scanErr)
		} else {
			counters.EmptyScans++
			metrics.PollAttempts.WithLabelValues("empty").Inc()
			log.Debug("No matching event this attempt",
				"attempt", attempt, "containers", len(containers))
		}

		if attempt == w.policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(sched.nextDelay(transient))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Counters: counters}, ctx.Err()
		case <-timer.C:
		}
	}

	metrics.Timeouts.Inc()
	log.Warn("Watch exhausted its attempt budget",
		"attempts", counters.Attempts,
		"empty_scans", counters.EmptyScans,
		"transient_errors", counters.TransientErrors)
	return Outcome{Counters: counters}, &TimeoutError{Handle: h, Attempts: counters.Attempts}
}
