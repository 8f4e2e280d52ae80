package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/codec"
	"github.com/greengoods/api/internal/model"
)

// WalletBackend submits directly from the caller's wallet: a dry-run
// against current chain state, then a signed transaction, then receipt
// polling.
type WalletBackend struct {
	chain *client.ChainClient
	codec *codec.AttestationCodec
}

// NewWalletBackend creates a new wallet-direct backend
func NewWalletBackend(chain *client.ChainClient, c *codec.AttestationCodec) *WalletBackend {
	return &WalletBackend{chain: chain, codec: c}
}

func (b *WalletBackend) Simulate(ctx context.Context, job *model.Job) (*Outcome, error) {
	return simulateCall(ctx, b.chain, b.codec, job, job.UserAddress)
}

func (b *WalletBackend) Dispatch(ctx context.Context, job *model.Job) (string, error) {
	return dispatchCall(ctx, b.chain, b.codec, job, job.UserAddress)
}

func (b *WalletBackend) Confirm(ctx context.Context, txRef string) (*Receipt, error) {
	return confirmTx(ctx, b.chain, txRef)
}

// simulateCall encodes the job and dry-runs it from the given account.
// Shared by the wallet and agent backends, which differ only in the
// sending account.
func simulateCall(ctx context.Context, chain *client.ChainClient, c *codec.AttestationCodec, job *model.Job, from string) (*Outcome, error) {
	record, err := c.EncodeJob(ctx, job)
	if err != nil {
		serr := model.Classify(err)
		if serr.Retryable {
			return nil, serr
		}
		return &Outcome{Err: serr}, nil
	}

	_, err = chain.Simulate(ctx, &client.CallMsg{From: from, To: record.To, Data: record.Data})
	if err != nil {
		if client.IsRevertError(err) {
			return &Outcome{Err: classifyRevert(err)}, nil
		}
		return nil, model.NewNetworkError(err)
	}

	return &Outcome{OK: true}, nil
}

func dispatchCall(ctx context.Context, chain *client.ChainClient, c *codec.AttestationCodec, job *model.Job, from string) (string, error) {
	record, err := c.EncodeJob(ctx, job)
	if err != nil {
		return "", model.Classify(err)
	}

	txHash, err := chain.SendTransaction(ctx, &client.CallMsg{From: from, To: record.To, Data: record.Data})
	if err != nil {
		if client.IsRevertError(err) {
			return "", classifyRevert(err)
		}
		return "", model.NewNetworkError(err)
	}
	return txHash, nil
}

func confirmTx(ctx context.Context, chain *client.ChainClient, txRef string) (*Receipt, error) {
	receipt, err := chain.GetReceipt(ctx, txRef)
	if err != nil {
		return nil, model.NewNetworkError(err)
	}
	if receipt == nil {
		return &Receipt{Status: ReceiptPending, TxRef: txRef}, nil
	}
	if receipt.Succeeded() {
		return &Receipt{Status: ReceiptConfirmed, TxRef: txRef}, nil
	}
	return &Receipt{Status: ReceiptReverted, TxRef: txRef}, nil
}

// classifyRevert maps a dry-run revert to the error taxonomy. Reverts
// phrased as entitlement checks are authorization failures with a
// user-actionable message; everything else is a plain simulation failure.
func classifyRevert(err error) *model.SubmissionError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not authorized") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "not a gardener") || strings.Contains(lower, "not an operator") {
		return model.NewAuthorizationError(fmt.Sprintf("submission rejected: %s", msg))
	}
	return model.NewSimulationFailure(msg)
}
