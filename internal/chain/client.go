package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lynx-chain/compwatch/pkg/logger"
)

// Config holds RPC client configuration.
type Config struct {
	RPCURL         string
	Timeout        time.Duration
	RequestsPerSec int
}

// Client provides JSON-RPC access to a node's transaction index.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a new RPC client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 10
	}
	if log == nil {
		log = logger.Nop()
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec),
		log:        log,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// SignaturesForAddress lists the most recent transactions that touched the
// given program address, newest first, at most limit entries.
func (c *Client) SignaturesForAddress(ctx context.Context, addr Address, limit int) ([]SignatureInfo, error) {
	params := []any{
		addr.String(),
		map[string]any{"limit": limit},
	}

	var infos []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", params, &infos); err != nil {
		return nil, fmt.Errorf("failed to list signatures for %s: %w", addr, err)
	}
	return infos, nil
}

// transactionResult mirrors the slice of the getTransaction response this
// client cares about. Everything else in the response is ignored.
type transactionResult struct {
	Slot uint64 `json:"slot"`
	Meta struct {
		LogMessages []string `json:"logMessages"`
	} `json:"meta"`
}

// TransactionLogs fetches the log lines of one transaction at the requested
// commitment level. A null result means the node does not know the
// transaction at that level; that is reported via Found, not an error.
func (c *Client) TransactionLogs(ctx context.Context, signature string, commitment CommitmentLevel) (ContainerContent, error) {
	params := []any{
		signature,
		map[string]any{
			"commitment":                     string(commitment),
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return ContainerContent{}, fmt.Errorf("failed to fetch transaction %s: %w", signature, err)
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ContainerContent{Found: false}, nil
	}

	var result transactionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ContainerContent{}, fmt.Errorf("failed to decode transaction %s: %w", signature, err)
	}

	return ContainerContent{
		LogLines: result.Meta.LogMessages,
		Found:    true,
	}, nil
}

// call performs one JSON-RPC round trip, honoring the client rate limit.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, method)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}
