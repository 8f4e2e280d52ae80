package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/greengoods/api/internal/config"
)

// Bundle statuses reported by the relay
const (
	BundleStatusPending  = "pending"
	BundleStatusIncluded = "included"
	BundleStatusFailed   = "failed"
)

// RelayAPI defines the sponsored smart-account operations.
type RelayAPI interface {
	GetAccount(ctx context.Context, address string) (*AccountStatus, error)
	SimulateBundle(ctx context.Context, req *BundleRequest) (*BundleSimulation, error)
	SubmitBundle(ctx context.Context, req *BundleRequest) (*BundleResponse, error)
	GetBundleStatus(ctx context.Context, opHash string) (*BundleStatus, error)
}

// RelayClient implements RelayAPI for the sponsoring relay service.
type RelayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// AccountStatus describes a smart account known to the relay.
type AccountStatus struct {
	Address     string `json:"address"`
	Initialized bool   `json:"initialized"`
	Deployed    bool   `json:"deployed"`
}

// BundleRequest is a sponsored operation bundle for one account.
type BundleRequest struct {
	Account string `json:"account"`
	Target  string `json:"target"`
	Data    string `json:"data"`
}

// BundleSimulation is the relay's dry-run verdict for a bundle.
type BundleSimulation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// BundleResponse acknowledges an accepted bundle.
type BundleResponse struct {
	OpHash string `json:"opHash"`
	Status string `json:"status"`
}

// BundleStatus is the relay's view of a submitted bundle.
type BundleStatus struct {
	OpHash string `json:"opHash"`
	Status string `json:"status"`
	TxHash string `json:"txHash,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NewRelayClient creates a new relay client
func NewRelayClient(cfg *config.RelayConfig) *RelayClient {
	return &RelayClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// GetAccount fetches the initialization state of a smart account.
func (c *RelayClient) GetAccount(ctx context.Context, address string) (*AccountStatus, error) {
	var result AccountStatus
	if err := c.get(ctx, fmt.Sprintf("/v1/accounts/%s", address), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SimulateBundle asks the relay to dry-run a bundle without sponsoring it.
func (c *RelayClient) SimulateBundle(ctx context.Context, req *BundleRequest) (*BundleSimulation, error) {
	var result BundleSimulation
	if err := c.post(ctx, "/v1/bundles/simulate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitBundle submits a bundle for sponsored execution.
func (c *RelayClient) SubmitBundle(ctx context.Context, req *BundleRequest) (*BundleResponse, error) {
	var result BundleResponse
	if err := c.post(ctx, "/v1/bundles", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBundleStatus retrieves the status of a submitted bundle.
func (c *RelayClient) GetBundleStatus(ctx context.Context, opHash string) (*BundleStatus, error) {
	var result BundleStatus
	if err := c.get(ctx, fmt.Sprintf("/v1/bundles/%s", opHash), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RelayClient) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// post sends a POST request with JSON body
func (c *RelayClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *RelayClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *RelayClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Relay] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Relay] ← %d %s %s — %s", resp.StatusCode, req.Method, req.URL.String(), string(respBody))
		return fmt.Errorf("relay error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
