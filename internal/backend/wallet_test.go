package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/codec"
	"github.com/greengoods/api/internal/config"
	"github.com/greengoods/api/internal/model"
)

// rpcNode is a scriptable JSON-RPC endpoint.
type rpcNode struct {
	mu      sync.Mutex
	results map[string]string // method → raw result JSON
	errors  map[string]string // method → raw error JSON
}

func newRPCNode() *rpcNode {
	return &rpcNode{
		results: map[string]string{
			"eth_call":                  `"0x"`,
			"eth_sendTransaction":       `"0xhash1"`,
			"eth_getTransactionReceipt": `null`,
			"eth_chainId":               `"0x1"`,
		},
		errors: map[string]string{},
	}
}

func (n *rpcNode) set(method, result string) {
	n.mu.Lock()
	n.results[method] = result
	delete(n.errors, method)
	n.mu.Unlock()
}

func (n *rpcNode) fail(method, errJSON string) {
	n.mu.Lock()
	n.errors[method] = errJSON
	n.mu.Unlock()
}

func (n *rpcNode) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n.mu.Lock()
		errJSON, isErr := n.errors[req.Method]
		result := n.results[req.Method]
		n.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if isErr {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":%s}`, req.ID, errJSON)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newWallet(t *testing.T, node *rpcNode) *WalletBackend {
	t.Helper()
	srv := node.serve(t)
	chain := client.NewChainClient(&config.ChainConfig{RPCURL: srv.URL, Timeout: 5})
	c := codec.NewAttestationCodec(client.NewMemStorage(), "0xregistry")
	return NewWalletBackend(chain, c)
}

func workJob() *model.Job {
	return &model.Job{
		ID:           "job-1",
		ClientWorkID: "work-00000001",
		Kind:         model.JobKindSubmitWork,
		Payload:      json.RawMessage(`{"gardenId":"g-1","title":"weeding"}`),
		Backend:      model.BackendWallet,
		UserAddress:  "0xaaa",
	}
}

func TestWalletSimulateOK(t *testing.T) {
	b := newWallet(t, newRPCNode())

	out, err := b.Simulate(context.Background(), workJob())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !out.OK {
		t.Errorf("expected OK outcome, got %+v", out)
	}
}

func TestWalletSimulateRevertClassification(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    model.ErrorCode
	}{
		{"entitlement revert", "execution reverted: not a gardener", model.CodeAuthorization},
		{"generic revert", "execution reverted: garden closed", model.CodeSimulationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newRPCNode()
			node.fail("eth_call", fmt.Sprintf(`{"code":3,"message":%q}`, tt.message))
			b := newWallet(t, node)

			out, err := b.Simulate(context.Background(), workJob())
			if err != nil {
				t.Fatalf("revert should be an outcome, not an error: %v", err)
			}
			if out.OK || out.Err == nil {
				t.Fatalf("expected failing outcome, got %+v", out)
			}
			if out.Err.Code != tt.want {
				t.Errorf("code = %s, want %s", out.Err.Code, tt.want)
			}
			if out.Err.Retryable {
				t.Error("revert verdicts are definitive, not retryable")
			}
		})
	}
}

func TestWalletSimulateNodeUnavailable(t *testing.T) {
	node := newRPCNode()
	node.fail("eth_call", `{"code":-32000,"message":"node is syncing"}`)
	b := newWallet(t, node)

	_, err := b.Simulate(context.Background(), workJob())
	if err == nil {
		t.Fatal("expected transport error")
	}
	serr := model.Classify(err)
	if !serr.Retryable {
		t.Errorf("node unavailability must be retryable, got %+v", serr)
	}
}

func TestWalletSimulateInvalidPayloadIsTerminal(t *testing.T) {
	b := newWallet(t, newRPCNode())

	job := workJob()
	job.Payload = json.RawMessage(`{"title":"no garden"}`)

	out, err := b.Simulate(context.Background(), job)
	if err != nil {
		t.Fatalf("validation should be an outcome, not an error: %v", err)
	}
	if out.Err == nil || out.Err.Code != model.CodeValidation {
		t.Errorf("expected VALIDATION_ERROR outcome, got %+v", out)
	}
}

func TestWalletDispatchAndConfirm(t *testing.T) {
	node := newRPCNode()
	b := newWallet(t, node)
	ctx := context.Background()

	txRef, err := b.Dispatch(ctx, workJob())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if txRef != "0xhash1" {
		t.Errorf("txRef = %s, want 0xhash1", txRef)
	}

	// Pending while the receipt is null.
	receipt, err := b.Confirm(ctx, txRef)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if receipt.Status != ReceiptPending {
		t.Errorf("status = %s, want pending", receipt.Status)
	}

	node.set("eth_getTransactionReceipt", `{"transactionHash":"0xhash1","blockNumber":"0x10","status":"0x1"}`)
	receipt, err = b.Confirm(ctx, txRef)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if receipt.Status != ReceiptConfirmed {
		t.Errorf("status = %s, want confirmed", receipt.Status)
	}

	node.set("eth_getTransactionReceipt", `{"transactionHash":"0xhash1","blockNumber":"0x10","status":"0x0"}`)
	receipt, err = b.Confirm(ctx, txRef)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if receipt.Status != ReceiptReverted {
		t.Errorf("status = %s, want reverted", receipt.Status)
	}
}
