package watcher

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/event"
)

// page is the scripted result of one SignaturesForAddress call.
type page struct {
	infos []chain.SignatureInfo
	err   error
}

// fakeSource serves scripted listing pages; the last page repeats once the
// script runs out. Safe for concurrent watches.
type fakeSource struct {
	mu        sync.Mutex
	pages     []page
	contents  map[string]chain.ContainerContent
	listCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{contents: make(map[string]chain.ContainerContent)}
}

func (f *fakeSource) addPage(p page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, p)
}

func (f *fakeSource) setContainer(sig string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents[sig] = chain.ContainerContent{LogLines: lines, Found: true}
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeSource) SignaturesForAddress(_ context.Context, _ chain.Address, limit int) ([]chain.SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if len(f.pages) == 0 {
		return nil, nil
	}
	idx := f.listCalls - 1
	if idx >= len(f.pages) {
		idx = len(f.pages) - 1
	}
	p := f.pages[idx]
	if p.err != nil {
		return nil, p.err
	}
	if len(p.infos) > limit {
		return p.infos[:limit], nil
	}
	return p.infos, nil
}

func (f *fakeSource) TransactionLogs(_ context.Context, sig string, _ chain.CommitmentLevel) (chain.ContainerContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents[sig], nil
}

func sigs(ids ...string) []chain.SignatureInfo {
	infos := make([]chain.SignatureInfo, len(ids))
	for i, id := range ids {
		infos[i] = chain.SignatureInfo{Signature: id}
	}
	return infos
}

func testEmitter() chain.Address {
	var a chain.Address
	for i := range a {
		a[i] = 0xAB
	}
	return a
}

// eventLine frames a completion event the way the emitting runtime does.
func eventLine(disc event.Discriminator, h uint64, emitter chain.Address) string {
	payload := make([]byte, 0, event.MinPayloadLen)
	payload = append(payload, disc[:]...)
	payload = binary.LittleEndian.AppendUint64(payload, h)
	payload = append(payload, emitter.Bytes()...)
	return event.Marker + base64.StdEncoding.EncodeToString(payload)
}

const scenarioHandle = uint64(0x1122334455667711)

func TestAwaitFindsEventOnFirstAttempt(t *testing.T) {
	emitter := testEmitter()
	src := newFakeSource()
	src.addPage(page{infos: sigs("sig-noise", "sig-match")})
	src.setContainer("sig-noise",
		"Program log: instruction create_market",
		"Program log: done")
	src.setContainer("sig-match",
		"Program log: invoke [1]",
		"Program log: queueing computation",
		eventLine(event.FinalizeComputationDiscriminator, scenarioHandle, emitter),
		"Program log: consumed 18200 compute units",
		"Program log: success",
		"Program log: invoke done")

	w := New(src, nil, Options{PollInterval: 10 * time.Millisecond, MaxAttempts: 5}, nil)
	out, err := w.Await(context.Background(), scenarioHandle, emitter)
	require.NoError(t, err)

	assert.True(t, out.Found)
	assert.Equal(t, "sig-match", out.ContainerID)
	assert.Equal(t, 1, out.Counters.Attempts)
	assert.Equal(t, 1, src.calls())
}

func TestAwaitTimesOutAfterExactlyMaxAttempts(t *testing.T) {
	src := newFakeSource()
	src.addPage(page{infos: sigs("sig-1")})
	src.setContainer("sig-1", "Program log: unrelated")

	w := New(src, nil, Options{PollInterval: 10 * time.Millisecond, MaxAttempts: 3}, nil)

	start := time.Now()
	out, err := w.Await(context.Background(), scenarioHandle, testEmitter())
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, scenarioHandle, timeoutErr.Handle)
	assert.Equal(t, 3, timeoutErr.Attempts)

	assert.False(t, out.Found)
	assert.Equal(t, 3, out.Counters.Attempts)
	assert.Equal(t, 3, out.Counters.EmptyScans)
	assert.Equal(t, 3, src.calls())

	// Two sleeps of ~10ms separate the three attempts.
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestAwaitNeverMatchesNearMisses(t *testing.T) {
	emitter := testEmitter()
	var otherEmitter chain.Address
	for i := range otherEmitter {
		otherEmitter[i] = 0xCD
	}
	wrongKind := event.DeriveDiscriminator("QueueComputationEvent")

	short := make([]byte, event.MinPayloadLen-1)
	src := newFakeSource()
	src.addPage(page{infos: sigs("sig-1")})
	src.setContainer("sig-1",
		eventLine(event.FinalizeComputationDiscriminator, scenarioHandle+1, emitter),
		eventLine(event.FinalizeComputationDiscriminator, scenarioHandle, otherEmitter),
		eventLine(wrongKind, scenarioHandle, emitter),
		event.Marker+base64.StdEncoding.EncodeToString(short))

	w := New(src, nil, Options{PollInterval: time.Millisecond, MaxAttempts: 2}, nil)
	out, err := w.Await(context.Background(), scenarioHandle, emitter)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.False(t, out.Found)
}

func TestAwaitToleratesMalformedLines(t *testing.T) {
	emitter := testEmitter()
	src := newFakeSource()
	src.addPage(page{infos: sigs("sig-1")})
	src.setContainer("sig-1",
		event.Marker+"!!!not base64!!!",
		event.Marker,
		"\x00\x01\x02 binary garbage",
		eventLine(event.FinalizeComputationDiscriminator, 42, emitter))

	w := New(src, nil, Options{PollInterval: time.Millisecond, MaxAttempts: 2}, nil)
	out, err := w.Await(context.Background(), 42, emitter)
	require.NoError(t, err)
	assert.True(t, out.Found)
}

func TestAwaitConcurrentWatchesAreIndependent(t *testing.T) {
	emitter := testEmitter()
	handleA := uint64(0x0a0a0a0a0a0a0a0a)
	handleB := uint64(0x0b0b0b0b0b0b0b0b)

	// Both completion events land in the same container.
	src := newFakeSource()
	src.addPage(page{infos: sigs("sig-both")})
	src.setContainer("sig-both",
		eventLine(event.FinalizeComputationDiscriminator, handleA, emitter),
		eventLine(event.FinalizeComputationDiscriminator, handleB, emitter))

	w := New(src, nil, Options{PollInterval: 5 * time.Millisecond, MaxAttempts: 10}, nil)

	var wg sync.WaitGroup
	results := make([]Outcome, 2)
	errs := make([]error, 2)
	for i, h := range []uint64{handleA, handleB} {
		wg.Add(1)
		go func(i int, h uint64) {
			defer wg.Done()
			results[i], errs[i] = w.Await(context.Background(), h, emitter)
		}(i, h)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Found)
		assert.Equal(t, "sig-both", results[i].ContainerID)
		assert.Equal(t, 1, results[i].Counters.Attempts)
	}
}

func TestAwaitStopsPromptlyOnCancellation(t *testing.T) {
	src := newFakeSource()
	src.addPage(page{infos: nil})

	w := New(src, nil, Options{PollInterval: time.Hour, MaxAttempts: 100}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := w.Await(ctx, 7, testEmitter())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, time.Second)

	// No further scans after cancellation.
	calls := src.calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.calls())
}

func TestAwaitHonorsContextDeadline(t *testing.T) {
	src := newFakeSource()
	src.addPage(page{infos: nil})

	w := New(src, nil, Options{PollInterval: 50 * time.Millisecond, MaxAttempts: 1000}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := w.Await(ctx, 7, testEmitter())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitCountsTransientAndEmptyAttemptsSeparately(t *testing.T) {
	src := newFakeSource()
	src.addPage(page{err: errors.New("connection refused")})
	src.addPage(page{infos: nil})
	src.addPage(page{infos: nil})

	w := New(src, nil, Options{PollInterval: time.Millisecond, MaxAttempts: 3}, nil)
	out, err := w.Await(context.Background(), 7, testEmitter())

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 3, out.Counters.Attempts)
	assert.Equal(t, 1, out.Counters.TransientErrors)
	assert.Equal(t, 2, out.Counters.EmptyScans)
}

func TestAwaitRecoversAfterTransientFailures(t *testing.T) {
	emitter := testEmitter()
	src := newFakeSource()
	src.addPage(page{err: errors.New("i/o timeout")})
	src.addPage(page{infos: sigs("sig-1")})
	src.setContainer("sig-1", eventLine(event.FinalizeComputationDiscriminator, 99, emitter))

	w := New(src, nil, Options{PollInterval: time.Millisecond, MaxAttempts: 10}, nil)
	out, err := w.Await(context.Background(), 99, emitter)
	require.NoError(t, err)

	assert.True(t, out.Found)
	assert.Equal(t, 2, out.Counters.Attempts)
	assert.Equal(t, 1, out.Counters.TransientErrors)
}

func TestMatch(t *testing.T) {
	handleKey := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	emitterKey := testEmitter().Bytes()

	cand := event.Candidate{HandleBytes: handleKey, EmitterBytes: emitterKey}
	assert.True(t, Match(cand, handleKey, emitterKey))

	flipped := make([]byte, len(handleKey))
	copy(flipped, handleKey)
	flipped[0] ^= 0x01
	assert.False(t, Match(cand, flipped, emitterKey))

	otherEmitter := make([]byte, len(emitterKey))
	copy(otherEmitter, emitterKey)
	otherEmitter[31] ^= 0x80
	assert.False(t, Match(cand, handleKey, otherEmitter))
}

func TestTimeoutErrorMessageCarriesHandle(t *testing.T) {
	err := &TimeoutError{Handle: 0x1122334455667711, Attempts: 120}
	assert.Equal(t,
		fmt.Sprintf("no completion event for handle %#x after 120 attempts", uint64(0x1122334455667711)),
		err.Error())
}
