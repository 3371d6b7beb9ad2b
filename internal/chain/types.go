// Package chain provides read-only access to a node's transaction log
// stream: a paged listing of recent transactions for an address, the log
// content of a single transaction, and a live log subscription.
package chain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the width of a program address on the wire.
const AddressLen = 32

// Address identifies the on-chain program expected to own a completion
// event. It renders as lowercase hex, with or without a 0x prefix on input.
type Address [AddressLen]byte

// ParseAddress decodes a hex-encoded 32-byte program address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressLen {
		return a, fmt.Errorf("invalid address %q: got %d bytes, want %d", s, len(b), AddressLen)
	}
	copy(a[:], b)
	return a, nil
}

// Bytes returns the raw 32-byte form used for event field matching.
func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// CommitmentLevel selects how committed transaction content must be before
// the node will return it. It shapes what the node serves, not how events
// are matched.
type CommitmentLevel string

const (
	CommitmentProcessed CommitmentLevel = "processed"
	CommitmentConfirmed CommitmentLevel = "confirmed"
	CommitmentFinalized CommitmentLevel = "finalized"
)

// Valid reports whether c is one of the recognized levels.
func (c CommitmentLevel) Valid() bool {
	switch c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return true
	}
	return false
}

// SignatureInfo is one entry of the recent-transaction listing for an
// address, newest first. Only the signature is needed to fetch content.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       any    `json:"err"`
}

// ContainerContent is the log content of a single transaction. Found is
// false when the node does not (yet) know the transaction at the requested
// commitment level.
type ContainerContent struct {
	LogLines []string
	Found    bool
}
