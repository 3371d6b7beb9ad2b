// Package service runs many watches concurrently and exposes them over a
// small HTTP API. Each watch polls independently; an optional live log
// subscription short-circuits pending watches as notifications arrive.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lynx-chain/compwatch/internal/cache"
	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/event"
	"github.com/lynx-chain/compwatch/internal/handle"
	"github.com/lynx-chain/compwatch/internal/scanner"
	"github.com/lynx-chain/compwatch/internal/watcher"
	"github.com/lynx-chain/compwatch/pkg/logger"
)

// State is the lifecycle phase of one managed watch.
type State string

const (
	StatePending   State = "pending"
	StateFound     State = "found"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Watch is a snapshot of one managed watch.
type Watch struct {
	ID          string
	Handle      uint64
	Emitter     chain.Address
	State       State
	ContainerID string
	Counters    watcher.Counters
	CreatedAt   time.Time
	CompletedAt time.Time
}

// managedWatch is the mutable server-side record behind a Watch snapshot.
type managedWatch struct {
	Watch
	handleKey []byte
	cancel    context.CancelFunc
}

// Manager owns the set of in-flight watches.
type Manager struct {
	mu       sync.RWMutex
	watches  map[string]*managedWatch
	source   scanner.LogSource
	seen     cache.Cache
	defaults watcher.Options
	watcher  *watcher.Watcher
	decoder  event.Decoder
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewManager creates a manager that runs watches against source. defaults
// applies to every watch unless Create overrides individual fields.
func NewManager(source scanner.LogSource, seen cache.Cache, defaults watcher.Options, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		watches:  make(map[string]*managedWatch),
		source:   source,
		seen:     seen,
		defaults: defaults,
		watcher:  watcher.New(source, seen, defaults, log),
		decoder:  event.NewDecoder(event.FinalizeComputationDiscriminator),
		log:      log,
	}
}

// mergeOptions overlays the non-zero fields of over onto base.
func mergeOptions(base, over watcher.Options) watcher.Options {
	if over.WindowSize != 0 {
		base.WindowSize = over.WindowSize
	}
	if over.PollInterval != 0 {
		base.PollInterval = over.PollInterval
	}
	if over.MaxAttempts != 0 {
		base.MaxAttempts = over.MaxAttempts
	}
	if over.TransientMaxInterval != 0 {
		base.TransientMaxInterval = over.TransientMaxInterval
	}
	if over.Commitment != "" {
		base.Commitment = over.Commitment
	}
	if over.MaxLinesPerContainer != 0 {
		base.MaxLinesPerContainer = over.MaxLinesPerContainer
	}
	if over.CacheTTL != 0 {
		base.CacheTTL = over.CacheTTL
	}
	return base
}

// Create registers a new watch and starts polling for it. ctx bounds the
// whole watch; cancelling it (or calling Cancel) stops polling. opts, when
// non-nil, overrides the manager defaults for this watch only.
func (m *Manager) Create(ctx context.Context, h uint64, emitter chain.Address, opts *watcher.Options) (Watch, error) {
	handleKey, err := handle.Encode(h, handle.Width)
	if err != nil {
		return Watch{}, err
	}

	w := m.watcher
	if opts != nil {
		w = watcher.New(m.source, m.seen, mergeOptions(m.defaults, *opts), m.log)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	mw := &managedWatch{
		Watch: Watch{
			ID:        uuid.NewString(),
			Handle:    h,
			Emitter:   emitter,
			State:     StatePending,
			CreatedAt: time.Now().UTC(),
		},
		handleKey: handleKey,
		cancel:    cancel,
	}

	m.mu.Lock()
	m.watches[mw.ID] = mw
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		out, err := w.Await(watchCtx, h, emitter)
		m.complete(mw.ID, out, err)
	}()

	m.log.Info("Watch created", "id", mw.ID, "emitter", emitter.String())
	return mw.Watch, nil
}

// complete records the terminal outcome of a watch. It is a no-op when the
// watch already left the pending state (e.g. the subscriber fast path won).
func (m *Manager) complete(id string, out watcher.Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mw, ok := m.watches[id]
	if !ok || mw.State != StatePending {
		return
	}

	mw.Counters = out.Counters
	mw.CompletedAt = time.Now().UTC()

	var timeoutErr *watcher.TimeoutError
	switch {
	case err == nil:
		mw.State = StateFound
		mw.ContainerID = out.ContainerID
	case errors.As(err, &timeoutErr):
		mw.State = StateTimedOut
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		mw.State = StateCancelled
	default:
		mw.State = StateFailed
		m.log.Error("Watch failed", "id", id, "error", err)
	}
}

// Get returns a snapshot of one watch.
func (m *Manager) Get(id string) (Watch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mw, ok := m.watches[id]
	if !ok {
		return Watch{}, false
	}
	return mw.Watch, true
}

// List returns snapshots of all watches.
func (m *Manager) List() []Watch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Watch, 0, len(m.watches))
	for _, mw := range m.watches {
		out = append(out, mw.Watch)
	}
	return out
}

// Cancel stops a pending watch. It reports whether the watch exists.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	mw, ok := m.watches[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	mw.cancel()
	return true
}

// ConsumeNotifications completes pending watches from a live log stream.
// Polling stays on as the safety net; this only lowers latency. Returns
// when the channel closes.
func (m *Manager) ConsumeNotifications(notifs <-chan chain.LogNotification) {
	for n := range notifs {
		for _, line := range n.LogLines {
			cand, ok := m.decoder.Decode(line)
			if !ok {
				continue
			}
			m.completeByMatch(cand, n.Signature)
		}
	}
}

// completeByMatch resolves any pending watch whose keys match the candidate.
func (m *Manager) completeByMatch(cand event.Candidate, containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mw := range m.watches {
		if mw.State != StatePending {
			continue
		}
		if !watcher.Match(cand, mw.handleKey, mw.Emitter.Bytes()) {
			continue
		}
		mw.State = StateFound
		mw.ContainerID = containerID
		mw.CompletedAt = time.Now().UTC()
		mw.cancel()
		m.log.Info("Watch completed from live stream",
			"id", mw.ID, "container", containerID)
	}
}

// Shutdown cancels all watches and waits for their goroutines, bounded by
// ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, mw := range m.watches {
		mw.cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
