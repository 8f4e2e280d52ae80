package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/greengoods/api/internal/config"
)

// ChainRPC defines the JSON-RPC primitives the submission backends need.
type ChainRPC interface {
	Simulate(ctx context.Context, call *CallMsg) (string, error)
	SendTransaction(ctx context.Context, call *CallMsg) (string, error)
	GetReceipt(ctx context.Context, txHash string) (*TxReceipt, error)
	Ping(ctx context.Context) error
}

// ChainClient implements ChainRPC against an Ethereum JSON-RPC endpoint.
type ChainClient struct {
	httpClient *http.Client
	rpcURL     string
	chainID    int64
	reqID      atomic.Int64
}

// CallMsg describes a contract call or transaction.
type CallMsg struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

// TxReceipt is the subset of an execution receipt the queue cares about.
type TxReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"` // "0x1" success, "0x0" reverted
}

// Succeeded reports whether the transaction executed without reverting.
func (r *TxReceipt) Succeeded() bool {
	return r.Status == "0x1"
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsRevert reports whether the node rejected the call because execution
// reverted, as opposed to a transport or node availability problem.
func (e *rpcError) IsRevert() bool {
	return e.Code == 3 || strings.Contains(strings.ToLower(e.Message), "revert")
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewChainClient creates a new JSON-RPC chain client
func NewChainClient(cfg *config.ChainConfig) *ChainClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChainClient{
		httpClient: &http.Client{Timeout: timeout},
		rpcURL:     cfg.RPCURL,
		chainID:    cfg.ChainID,
	}
}

// Simulate performs a dry-run of the call against current chain state and
// returns the call's return data. A revert surfaces as an *rpcError with
// IsRevert() true.
func (c *ChainClient) Simulate(ctx context.Context, call *CallMsg) (string, error) {
	var ret string
	if err := c.call(ctx, "eth_call", []interface{}{call, "latest"}, &ret); err != nil {
		return "", err
	}
	return ret, nil
}

// SendTransaction submits the transaction for signing and broadcast by the
// connected node and returns the transaction hash.
func (c *ChainClient) SendTransaction(ctx context.Context, call *CallMsg) (string, error) {
	var hash string
	if err := c.call(ctx, "eth_sendTransaction", []interface{}{call}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetReceipt fetches the receipt for a transaction hash. Returns (nil, nil)
// while the transaction is still pending.
func (c *ChainClient) GetReceipt(ctx context.Context, txHash string) (*TxReceipt, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var receipt TxReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &receipt, nil
}

// Ping checks node reachability and, when a chain ID is configured, that
// the node serves the expected chain. Used by the connectivity monitor.
func (c *ChainClient) Ping(ctx context.Context) error {
	var hexID string
	if err := c.call(ctx, "eth_chainId", []interface{}{}, &hexID); err != nil {
		return err
	}
	if c.chainID > 0 {
		id, err := strconv.ParseInt(strings.TrimPrefix(hexID, "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("failed to parse chain id %q: %w", hexID, err)
		}
		if id != c.chainID {
			return fmt.Errorf("connected to chain %d, expected %d", id, c.chainID)
		}
	}
	return nil
}

// call executes one JSON-RPC request and unmarshals the result.
func (c *ChainClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.reqID.Add(1),
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Chain RPC] ✗ %s — request failed: %v", method, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Chain RPC] ← %d %s — %s", resp.StatusCode, method, string(respBody))
		return fmt.Errorf("chain RPC error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		log.Printf("[Chain RPC] ← %s — node error: %v", method, rpcResp.Error)
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return nil
}

// IsRevertError reports whether err is a node-side execution revert.
func IsRevertError(err error) bool {
	rpcErr, ok := err.(*rpcError)
	return ok && rpcErr.IsRevert()
}
