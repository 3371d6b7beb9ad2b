// Package handle encodes the caller-chosen request handle into the
// fixed-width little-endian form embedded in completion event payloads.
package handle

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Width is the wire width of a request handle in bytes.
const Width = 8

// Encode serializes h in little-endian byte order, padded to width bytes.
// It fails when h does not fit in width bytes; truncating silently would
// make two distinct handles compare equal on the wire.
func Encode(h uint64, width int) ([]byte, error) {
	if width < 1 || width > Width {
		return nil, fmt.Errorf("handle width %d out of range [1,%d]", width, Width)
	}
	if width < Width && h >= 1<<(8*uint(width)) {
		return nil, fmt.Errorf("handle %#x does not fit in %d bytes", h, width)
	}
	var buf [Width]byte
	binary.LittleEndian.PutUint64(buf[:], h)
	return buf[:width], nil
}

// Decode reverses Encode for any width in [1,8].
func Decode(b []byte) (uint64, error) {
	if len(b) < 1 || len(b) > Width {
		return 0, fmt.Errorf("handle length %d out of range [1,%d]", len(b), Width)
	}
	var buf [Width]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Random draws a fresh handle for a new computation request. Handles are
// correlation keys, not secrets, but a CSPRNG keeps collisions between
// concurrent requesters out of the picture.
func Random() (uint64, error) {
	var buf [Width]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to draw random handle: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
