package event

import (
	"encoding/base64"
	"strings"
)

// Marker prefixes every log line that carries an event payload. Lines
// without it are ordinary program output.
const Marker = "Program data: "

const (
	// HandleLen is the width of the encoded request handle field.
	HandleLen = 8
	// EmitterLen is the width of the emitter identity field.
	EmitterLen = 32
	// MinPayloadLen is the smallest payload that can hold all three fields.
	MinPayloadLen = DiscriminatorLen + HandleLen + EmitterLen
)

// Candidate is a decoded event payload whose discriminator matched the kind
// the decoder is looking for. Handle and emitter still need matching against
// a pending request before the event means anything.
type Candidate struct {
	Discriminator Discriminator
	HandleBytes   []byte
	EmitterBytes  []byte
}

// Decoder extracts candidate events of one kind from raw log lines.
type Decoder struct {
	want Discriminator
}

// NewDecoder returns a decoder that accepts only events tagged with d.
func NewDecoder(d Discriminator) Decoder {
	return Decoder{want: d}
}

// Decode parses one raw log line. The stream is shared with unrelated
// programs, so anything that fails to parse is a non-candidate, never an
// error: a rejected line must not prevent later lines from being scanned.
func (d Decoder) Decode(line string) (Candidate, bool) {
	rest, found := strings.CutPrefix(line, Marker)
	if !found {
		return Candidate{}, false
	}

	payload, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		// Coincidental marker match or transport corruption.
		return Candidate{}, false
	}

	if len(payload) < MinPayloadLen {
		return Candidate{}, false
	}

	var disc Discriminator
	copy(disc[:], payload[:DiscriminatorLen])
	if disc != d.want {
		return Candidate{}, false
	}

	return Candidate{
		Discriminator: disc,
		HandleBytes:   payload[DiscriminatorLen : DiscriminatorLen+HandleLen],
		EmitterBytes:  payload[DiscriminatorLen+HandleLen : MinPayloadLen],
	}, true
}
