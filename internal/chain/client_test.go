package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcHandler answers each JSON-RPC method with a canned result body.
func rpcHandler(t *testing.T, results map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, func()) {
	srv := httptest.NewServer(handler)
	c, err := NewClient(Config{RPCURL: srv.URL, RequestsPerSec: 1000}, nil)
	require.NoError(t, err)
	return c, srv.Close
}

func TestSignaturesForAddress(t *testing.T) {
	addr, err := ParseAddress(strings.Repeat("ab", 32))
	require.NoError(t, err)

	c, closeSrv := newTestClient(t, rpcHandler(t, map[string]string{
		"getSignaturesForAddress": `[
			{"signature":"sig-newest","slot":120},
			{"signature":"sig-older","slot":119}
		]`,
	}))
	defer closeSrv()

	infos, err := c.SignaturesForAddress(context.Background(), addr, 50)
	require.NoError(t, err)

	require.Len(t, infos, 2)
	assert.Equal(t, "sig-newest", infos[0].Signature)
	assert.Equal(t, uint64(120), infos[0].Slot)
	assert.Equal(t, "sig-older", infos[1].Signature)
}

func TestTransactionLogs(t *testing.T) {
	c, closeSrv := newTestClient(t, rpcHandler(t, map[string]string{
		"getTransaction": `{
			"slot": 120,
			"meta": {"logMessages": ["Program log: a", "Program data: aGk="]}
		}`,
	}))
	defer closeSrv()

	content, err := c.TransactionLogs(context.Background(), "sig-1", CommitmentConfirmed)
	require.NoError(t, err)

	assert.True(t, content.Found)
	assert.Equal(t, []string{"Program log: a", "Program data: aGk="}, content.LogLines)
}

func TestTransactionLogsNullResultMeansNotFound(t *testing.T) {
	c, closeSrv := newTestClient(t, rpcHandler(t, map[string]string{
		"getTransaction": `null`,
	}))
	defer closeSrv()

	content, err := c.TransactionLogs(context.Background(), "sig-unknown", CommitmentFinalized)
	require.NoError(t, err)
	assert.False(t, content.Found)
	assert.Empty(t, content.LogLines)
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	addr, err := ParseAddress(strings.Repeat("00", 32))
	require.NoError(t, err)

	c, closeSrv := newTestClient(t, rpcHandler(t, nil))
	defer closeSrv()

	_, err = c.SignaturesForAddress(context.Background(), addr, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestClientSurfacesHTTPFailures(t *testing.T) {
	c, closeSrv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer closeSrv()

	_, err := c.TransactionLogs(context.Background(), "sig-1", CommitmentConfirmed)
	require.Error(t, err)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}
