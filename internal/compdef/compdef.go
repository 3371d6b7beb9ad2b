// Package compdef derives computation-definition offsets from circuit
// names. The emitting runtime addresses each registered circuit by a u32
// offset computed deterministically from its name, so clients never carry a
// table of magic numbers.
package compdef

import (
	"crypto/sha256"
	"encoding/binary"
)

// Offset returns the computation-definition offset for a circuit name:
// the first 4 bytes of sha256(name), read little-endian.
func Offset(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}
