// Package event recognizes and decodes completion events embedded in the
// free-text log stream of a confidential-compute chain.
//
// Events travel inside transaction log lines: a fixed marker prefix followed
// by a base64 payload. The payload layout is fixed:
//
//	offset 0..8   discriminator (event kind tag)
//	offset 8..16  request handle, little-endian uint64
//	offset 16..48 emitter identity (32-byte program address)
//
// Longer payloads are valid; trailing bytes belong to event fields this
// protocol does not interpret.
package event

import "crypto/sha256"

// DiscriminatorLen is the width of the event kind tag.
const DiscriminatorLen = 8

// Discriminator tags the logical kind of an event within a shared stream.
type Discriminator [DiscriminatorLen]byte

// DeriveDiscriminator computes the tag for a named event kind. The emitting
// runtime derives tags as sha256("event:" + name) truncated to 8 bytes, so
// any consumer can reproduce the constant for a new event from its name.
func DeriveDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("event:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// FinalizeComputationEventName is the logical name of the event that reports
// completion of a queued computation.
const FinalizeComputationEventName = "FinalizeComputationEvent"

// FinalizeComputationDiscriminator is DeriveDiscriminator applied to
// FinalizeComputationEventName, spelled out so the wire constant is visible
// at a glance.
var FinalizeComputationDiscriminator = Discriminator{27, 75, 117, 221, 191, 213, 253, 249}
