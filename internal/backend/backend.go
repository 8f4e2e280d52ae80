package backend

import (
	"context"

	"github.com/greengoods/api/internal/model"
)

// Receipt statuses
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptReverted  ReceiptStatus = "reverted"
)

// Receipt is one confirmation check's result.
type Receipt struct {
	Status ReceiptStatus
	TxRef  string
}

// Outcome is a simulation verdict. A failed outcome carries the classified
// error; the queue manager decides retry vs terminal from its Retryable
// flag.
type Outcome struct {
	OK  bool
	Err *model.SubmissionError
}

// SubmissionBackend is the capability contract every submission strategy
// implements. The queue manager drives jobs through these three methods
// and never knows which variant is behind them.
//
// Simulate and Dispatch return a plain error only for transport-level
// problems (retryable by classification); definitive verdicts travel in
// the Outcome or as a classified *model.SubmissionError.
type SubmissionBackend interface {
	Simulate(ctx context.Context, job *model.Job) (*Outcome, error)
	Dispatch(ctx context.Context, job *model.Job) (string, error)
	Confirm(ctx context.Context, txRef string) (*Receipt, error)
}
