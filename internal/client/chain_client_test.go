package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/greengoods/api/internal/config"
)

func chainIDNode(t *testing.T, hexID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%q}`, hexID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPingVerifiesChainID(t *testing.T) {
	srv := chainIDNode(t, "0xa4b1")
	c := NewChainClient(&config.ChainConfig{RPCURL: srv.URL, ChainID: 42161})

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping against the expected chain: %v", err)
	}
}

func TestPingRejectsWrongChain(t *testing.T) {
	srv := chainIDNode(t, "0x1")
	c := NewChainClient(&config.ChainConfig{RPCURL: srv.URL, ChainID: 42161})

	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected an error for a mismatched chain")
	}
	if !strings.Contains(err.Error(), "expected 42161") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPingSkipsCheckWithoutConfiguredChain(t *testing.T) {
	srv := chainIDNode(t, "0x1")
	c := NewChainClient(&config.ChainConfig{RPCURL: srv.URL})

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping without a configured chain id: %v", err)
	}
}
