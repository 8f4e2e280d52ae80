package backend

import (
	"context"
	"fmt"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/codec"
	"github.com/greengoods/api/internal/model"
)

// SmartAccountBackend submits through a sponsoring relay. The smart
// account must be fully initialized before any bundle is built; an
// uninitialized account is its own non-retryable error, not a generic
// dispatch failure.
type SmartAccountBackend struct {
	relay *client.RelayClient
	chain *client.ChainClient
	codec *codec.AttestationCodec
}

// NewSmartAccountBackend creates a new sponsored smart-account backend
func NewSmartAccountBackend(relay *client.RelayClient, chain *client.ChainClient, c *codec.AttestationCodec) *SmartAccountBackend {
	return &SmartAccountBackend{relay: relay, chain: chain, codec: c}
}

// ensureAccount checks the initialization precondition.
func (b *SmartAccountBackend) ensureAccount(ctx context.Context, address string) error {
	account, err := b.relay.GetAccount(ctx, address)
	if err != nil {
		return model.NewNetworkError(err)
	}
	if !account.Initialized {
		return model.NewAccountNotReadyError(fmt.Sprintf("smart account %s is not initialized", address))
	}
	return nil
}

func (b *SmartAccountBackend) buildBundle(ctx context.Context, job *model.Job) (*client.BundleRequest, error) {
	record, err := b.codec.EncodeJob(ctx, job)
	if err != nil {
		return nil, model.Classify(err)
	}
	return &client.BundleRequest{
		Account: job.UserAddress,
		Target:  record.To,
		Data:    record.Data,
	}, nil
}

func (b *SmartAccountBackend) Simulate(ctx context.Context, job *model.Job) (*Outcome, error) {
	if err := b.ensureAccount(ctx, job.UserAddress); err != nil {
		serr := model.Classify(err)
		if serr.Retryable {
			return nil, serr
		}
		return &Outcome{Err: serr}, nil
	}

	bundle, err := b.buildBundle(ctx, job)
	if err != nil {
		serr := model.Classify(err)
		if serr.Retryable {
			return nil, serr
		}
		return &Outcome{Err: serr}, nil
	}

	sim, err := b.relay.SimulateBundle(ctx, bundle)
	if err != nil {
		return nil, model.NewNetworkError(err)
	}
	if !sim.Valid {
		return &Outcome{Err: classifyRevert(fmt.Errorf("%s", sim.Reason))}, nil
	}
	return &Outcome{OK: true}, nil
}

func (b *SmartAccountBackend) Dispatch(ctx context.Context, job *model.Job) (string, error) {
	if err := b.ensureAccount(ctx, job.UserAddress); err != nil {
		return "", model.Classify(err)
	}

	bundle, err := b.buildBundle(ctx, job)
	if err != nil {
		return "", err
	}

	resp, err := b.relay.SubmitBundle(ctx, bundle)
	if err != nil {
		return "", model.NewNetworkError(err)
	}
	return resp.OpHash, nil
}

// Confirm polls the relay first, then the chain once the bundle's
// transaction is known.
func (b *SmartAccountBackend) Confirm(ctx context.Context, txRef string) (*Receipt, error) {
	status, err := b.relay.GetBundleStatus(ctx, txRef)
	if err != nil {
		return nil, model.NewNetworkError(err)
	}

	switch status.Status {
	case client.BundleStatusFailed:
		return &Receipt{Status: ReceiptReverted, TxRef: txRef}, nil
	case client.BundleStatusIncluded:
		if status.TxHash == "" {
			return &Receipt{Status: ReceiptPending, TxRef: txRef}, nil
		}
		return confirmTx(ctx, b.chain, status.TxHash)
	default:
		return &Receipt{Status: ReceiptPending, TxRef: txRef}, nil
	}
}
