package backend

import (
	"context"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/codec"
	"github.com/greengoods/api/internal/model"
)

// AgentBackend submits on behalf of a remote, non-interactive caller. The
// transaction is sent from the service's relayer account while the encoded
// record names the gardener, so the attestation still credits them. The
// payload is validated before it ever reaches the queue, as there is no
// synchronous UI on the other end to correct malformed input.
type AgentBackend struct {
	chain          *client.ChainClient
	codec          *codec.AttestationCodec
	relayerAddress string
}

// NewAgentBackend creates a new agent-relayed backend
func NewAgentBackend(chain *client.ChainClient, c *codec.AttestationCodec, relayerAddress string) *AgentBackend {
	return &AgentBackend{chain: chain, codec: c, relayerAddress: relayerAddress}
}

func (b *AgentBackend) Simulate(ctx context.Context, job *model.Job) (*Outcome, error) {
	return simulateCall(ctx, b.chain, b.codec, job, b.relayerAddress)
}

func (b *AgentBackend) Dispatch(ctx context.Context, job *model.Job) (string, error) {
	return dispatchCall(ctx, b.chain, b.codec, job, b.relayerAddress)
}

func (b *AgentBackend) Confirm(ctx context.Context, txRef string) (*Receipt, error) {
	return confirmTx(ctx, b.chain, txRef)
}
