package watcher

import (
	"bytes"

	"github.com/lynx-chain/compwatch/internal/event"
)

// Match reports whether a candidate event belongs to the awaited request:
// byte-exact equality on both the handle and the emitter identity fields.
// No prefix or partial matching; the first match wins.
func Match(c event.Candidate, handleKey, emitterKey []byte) bool {
	return bytes.Equal(c.HandleBytes, handleKey) && bytes.Equal(c.EmitterBytes, emitterKey)
}
