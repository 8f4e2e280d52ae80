package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/model"
)

type fakeIndex struct {
	work *client.IndexedWork
	err  error
}

func (f *fakeIndex) FindByClientWorkID(ctx context.Context, gardener, clientWorkID string) (*client.IndexedWork, error) {
	return f.work, f.err
}

func testJob() *model.Job {
	return &model.Job{
		ID:           "job-1",
		ClientWorkID: "work-00000001",
		UserAddress:  "0xaaa",
	}
}

func TestCheckNoConflict(t *testing.T) {
	r := NewConflictResolver(&fakeIndex{})

	finding, err := r.Check(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if finding.Duplicate {
		t.Error("expected no duplicate")
	}
}

func TestCheckDuplicate(t *testing.T) {
	r := NewConflictResolver(&fakeIndex{work: &client.IndexedWork{
		AttestationUID: "0xuid",
		ClientWorkID:   "work-00000001",
		Gardener:       "0xaaa",
		AttestedAt:     time.Now(),
	}})

	finding, err := r.Check(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !finding.Duplicate || finding.CanonicalRef != "0xuid" {
		t.Errorf("expected duplicate with canonical ref, got %+v", finding)
	}
}

func TestCheckLookupFailureIsRetryable(t *testing.T) {
	r := NewConflictResolver(&fakeIndex{err: errors.New("connection refused")})

	_, err := r.Check(context.Background(), testJob())
	if err == nil {
		t.Fatal("expected error")
	}

	serr := model.Classify(err)
	if serr.Code != model.CodeNetwork || !serr.Retryable {
		t.Errorf("lookup failure must classify retryable network, got %+v", serr)
	}
}
