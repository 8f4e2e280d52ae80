package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/codec"
	"github.com/greengoods/api/internal/config"
	"github.com/greengoods/api/internal/model"
)

// relayStub is a scriptable relay service.
type relayStub struct {
	mu          sync.Mutex
	initialized bool
	simValid    bool
	simReason   string
	opHash      string
	status      client.BundleStatus
}

func (s *relayStub) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/accounts/"):
			json.NewEncoder(w).Encode(client.AccountStatus{
				Address:     strings.TrimPrefix(r.URL.Path, "/v1/accounts/"),
				Initialized: s.initialized,
				Deployed:    s.initialized,
			})
		case r.URL.Path == "/v1/bundles/simulate":
			json.NewEncoder(w).Encode(client.BundleSimulation{Valid: s.simValid, Reason: s.simReason})
		case r.URL.Path == "/v1/bundles" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(client.BundleResponse{OpHash: s.opHash, Status: client.BundleStatusPending})
		case strings.HasPrefix(r.URL.Path, "/v1/bundles/"):
			json.NewEncoder(w).Encode(s.status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSmartAccount(t *testing.T, stub *relayStub, node *rpcNode) *SmartAccountBackend {
	t.Helper()
	relaySrv := stub.serve(t)
	relay := client.NewRelayClient(&config.RelayConfig{BaseURL: relaySrv.URL, APIKey: "test-key"})

	chainSrv := node.serve(t)
	chain := client.NewChainClient(&config.ChainConfig{RPCURL: chainSrv.URL, Timeout: 5})

	c := codec.NewAttestationCodec(client.NewMemStorage(), "0xregistry")
	return NewSmartAccountBackend(relay, chain, c)
}

func TestSmartAccountNotReady(t *testing.T) {
	stub := &relayStub{initialized: false}
	b := newSmartAccount(t, stub, newRPCNode())

	out, err := b.Simulate(context.Background(), workJob())
	if err != nil {
		t.Fatalf("uninitialized account is a definitive outcome: %v", err)
	}
	if out.Err == nil || out.Err.Code != model.CodeAccountNotReady {
		t.Errorf("expected ACCOUNT_NOT_READY, got %+v", out)
	}
	if out.Err != nil && out.Err.Retryable {
		t.Error("account readiness is not retried blindly")
	}
}

func TestSmartAccountSimulate(t *testing.T) {
	stub := &relayStub{initialized: true, simValid: true}
	b := newSmartAccount(t, stub, newRPCNode())

	out, err := b.Simulate(context.Background(), workJob())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !out.OK {
		t.Errorf("expected OK outcome, got %+v", out)
	}

	stub.mu.Lock()
	stub.simValid = false
	stub.simReason = "not authorized for garden g-1"
	stub.mu.Unlock()

	out, err = b.Simulate(context.Background(), workJob())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if out.Err == nil || out.Err.Code != model.CodeAuthorization {
		t.Errorf("expected AUTHORIZATION_ERROR, got %+v", out)
	}
}

func TestSmartAccountDispatchAndConfirm(t *testing.T) {
	stub := &relayStub{initialized: true, simValid: true, opHash: "0xop1"}
	node := newRPCNode()
	b := newSmartAccount(t, stub, node)
	ctx := context.Background()

	opHash, err := b.Dispatch(ctx, workJob())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if opHash != "0xop1" {
		t.Errorf("opHash = %s, want 0xop1", opHash)
	}

	// Relay still pending.
	stub.mu.Lock()
	stub.status = client.BundleStatus{OpHash: "0xop1", Status: client.BundleStatusPending}
	stub.mu.Unlock()
	receipt, err := b.Confirm(ctx, opHash)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if receipt.Status != ReceiptPending {
		t.Errorf("status = %s, want pending", receipt.Status)
	}

	// Included: confirmation falls through to the chain receipt.
	stub.mu.Lock()
	stub.status = client.BundleStatus{OpHash: "0xop1", Status: client.BundleStatusIncluded, TxHash: "0xhash1"}
	stub.mu.Unlock()
	node.set("eth_getTransactionReceipt", `{"transactionHash":"0xhash1","blockNumber":"0x10","status":"0x1"}`)
	receipt, err = b.Confirm(ctx, opHash)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if receipt.Status != ReceiptConfirmed || receipt.TxRef != "0xhash1" {
		t.Errorf("receipt = %+v, want confirmed 0xhash1", receipt)
	}

	// Relay-side failure is a revert.
	stub.mu.Lock()
	stub.status = client.BundleStatus{OpHash: "0xop1", Status: client.BundleStatusFailed}
	stub.mu.Unlock()
	receipt, err = b.Confirm(ctx, opHash)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if receipt.Status != ReceiptReverted {
		t.Errorf("status = %s, want reverted", receipt.Status)
	}
}
