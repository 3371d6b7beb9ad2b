package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	hex64 := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain hex", hex64, false},
		{"0x prefix", "0x" + hex64, false},
		{"uppercase", strings.ToUpper(hex64), false},
		{"too short", hex64[:62], true},
		{"too long", hex64 + "ab", true},
		{"not hex", strings.Repeat("zz", 32), true},
		{"empty", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddress(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, hex64, addr.String())
			assert.Len(t, addr.Bytes(), AddressLen)
			assert.Equal(t, byte(0xAB), addr.Bytes()[0])
		})
	}
}

func TestCommitmentLevelValid(t *testing.T) {
	assert.True(t, CommitmentProcessed.Valid())
	assert.True(t, CommitmentConfirmed.Valid())
	assert.True(t, CommitmentFinalized.Valid())
	assert.False(t, CommitmentLevel("").Valid())
	assert.False(t, CommitmentLevel("final").Valid())
}
