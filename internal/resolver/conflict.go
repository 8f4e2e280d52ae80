package resolver

import (
	"context"
	"fmt"
	"log"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/model"
)

// Finding is the resolver's verdict for a job about to dispatch.
type Finding struct {
	Duplicate    bool
	CanonicalRef string
}

// ConflictResolver checks the authoritative remote state before a job is
// dispatched. A duplicate finding is not an error: it means the same
// logical submission already landed through another device or an earlier
// queue instance, and the job should resolve as success-elsewhere.
type ConflictResolver struct {
	index client.WorkIndex
}

// NewConflictResolver creates a new conflict resolver
func NewConflictResolver(index client.WorkIndex) *ConflictResolver {
	return &ConflictResolver{index: index}
}

// Check queries the indexer for an attestation with the job's clientWorkId.
// A lookup failure is a retryable network error: dispatching without the
// check is the one unsafe direction.
func (r *ConflictResolver) Check(ctx context.Context, job *model.Job) (*Finding, error) {
	work, err := r.index.FindByClientWorkID(ctx, job.UserAddress, job.ClientWorkID)
	if err != nil {
		return nil, model.NewNetworkError(fmt.Errorf("conflict lookup failed: %w", err))
	}
	if work == nil {
		return &Finding{}, nil
	}

	log.Printf("Job %s: clientWorkId %s already attested as %s", job.ID, job.ClientWorkID, work.AttestationUID)
	return &Finding{Duplicate: true, CanonicalRef: work.AttestationUID}, nil
}
