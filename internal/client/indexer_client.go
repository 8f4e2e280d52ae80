package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/greengoods/api/internal/config"
)

// WorkIndex looks up submissions that already landed on chain.
type WorkIndex interface {
	FindByClientWorkID(ctx context.Context, gardener, clientWorkID string) (*IndexedWork, error)
}

// IndexerClient implements WorkIndex against the event indexer.
type IndexerClient struct {
	httpClient *http.Client
	baseURL    string
}

// IndexedWork is an attestation record the indexer has already seen.
type IndexedWork struct {
	AttestationUID string    `json:"attestationUid"`
	ClientWorkID   string    `json:"clientWorkId"`
	Gardener       string    `json:"gardener"`
	GardenID       string    `json:"gardenId"`
	AttestedAt     time.Time `json:"attestedAt"`
}

// NewIndexerClient creates a new indexer client
func NewIndexerClient(cfg *config.IndexerConfig) *IndexerClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &IndexerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
	}
}

// IsConfigured returns true if the indexer base URL is set
func (c *IndexerClient) IsConfigured() bool {
	return c.baseURL != ""
}

// FindByClientWorkID returns the indexed attestation for a logical
// submission, or (nil, nil) when nothing has landed yet.
func (c *IndexerClient) FindByClientWorkID(ctx context.Context, gardener, clientWorkID string) (*IndexedWork, error) {
	endpoint := fmt.Sprintf("%s/v1/works?gardener=%s&clientWorkId=%s",
		c.baseURL, url.QueryEscape(gardener), url.QueryEscape(clientWorkID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Indexer] ✗ GET %s — request failed: %v", endpoint, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Indexer] ← %d GET %s — %s", resp.StatusCode, endpoint, string(respBody))
		return nil, fmt.Errorf("indexer error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Works []IndexedWork `json:"works"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(result.Works) == 0 {
		return nil, nil
	}
	return &result.Works[0], nil
}
