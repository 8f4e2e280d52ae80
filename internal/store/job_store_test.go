package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/greengoods/api/internal/model"
)

func newTestStore(t *testing.T) (*JobStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewJobStore(client, 24*time.Hour), mr
}

func testJob(id, addr, workID string, createdAt time.Time) *model.Job {
	return &model.Job{
		ID:           id,
		ClientWorkID: workID,
		Kind:         model.JobKindSubmitWork,
		Payload:      []byte(`{"gardenId":"g-1","title":"weeding"}`),
		Backend:      model.BackendWallet,
		Status:       model.JobStatusQueued,
		MaxRetries:   5,
		UserAddress:  addr,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestPutAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job := testJob("job-1", "0xaaa", "work-00000001", time.Now())
	if err := s.Put(ctx, job); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != job.ID || got.ClientWorkID != job.ClientWorkID || got.Status != model.JobStatusQueued {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReserveIdempotency(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	owner, created, err := s.Reserve(ctx, "0xaaa", "work-00000001", "job-1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !created || owner != "job-1" {
		t.Fatalf("first reservation should create, got owner=%s created=%v", owner, created)
	}

	owner, created, err = s.Reserve(ctx, "0xaaa", "work-00000001", "job-2")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if created || owner != "job-1" {
		t.Errorf("second reservation should return first owner, got owner=%s created=%v", owner, created)
	}

	// Same workId for a different user is independent.
	_, created, err = s.Reserve(ctx, "0xbbb", "work-00000001", "job-3")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !created {
		t.Error("reservation must be scoped per user")
	}

	if err := s.Release(ctx, "0xaaa", "work-00000001"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	_, created, err = s.Reserve(ctx, "0xaaa", "work-00000001", "job-4")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !created {
		t.Error("released pair should be reservable again")
	}
}

func TestListByUserFIFO(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	// Insert out of order; the ZSET score restores enqueue order.
	for _, j := range []*model.Job{
		testJob("job-2", "0xaaa", "work-00000002", base.Add(time.Second)),
		testJob("job-1", "0xaaa", "work-00000001", base),
		testJob("job-3", "0xaaa", "work-00000003", base.Add(2*time.Second)),
	} {
		if err := s.Put(ctx, j); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	jobs, err := s.ListByUser(ctx, "0xaaa")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{"job-1", "job-2", "job-3"} {
		if jobs[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, jobs[i].ID, want)
		}
	}
}

func TestListByUserStatusFilter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	queued := testJob("job-1", "0xaaa", "work-00000001", base)
	confirmed := testJob("job-2", "0xaaa", "work-00000002", base.Add(time.Second))
	confirmed.Status = model.JobStatusConfirmed

	for _, j := range []*model.Job{queued, confirmed} {
		if err := s.Put(ctx, j); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	jobs, err := s.ListByUser(ctx, "0xaaa", model.JobStatusConfirmed)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-2" {
		t.Errorf("filter mismatch: %+v", jobs)
	}
}

func TestTerminalRetentionAndReservation(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	// Confirmed: record expires with retention, reservation kept longer.
	confirmed := testJob("job-1", "0xaaa", "work-00000001", time.Now())
	if _, _, err := s.Reserve(ctx, "0xaaa", "work-00000001", "job-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	confirmed.Status = model.JobStatusConfirmed
	if err := s.Put(ctx, confirmed); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if mr.TTL("job:job-1") <= 0 {
		t.Error("terminal record should carry the retention TTL")
	}
	if mr.TTL("jobs:active:0xaaa:work-00000001") <= 0 {
		t.Error("landed reservation should expire eventually, not immediately")
	}

	owner, created, err := s.Reserve(ctx, "0xaaa", "work-00000001", "job-9")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if created || owner != "job-1" {
		t.Error("landed job must keep owning its reservation")
	}

	// Failed: reservation released so the user can retry.
	failed := testJob("job-2", "0xaaa", "work-00000002", time.Now())
	if _, _, err := s.Reserve(ctx, "0xaaa", "work-00000002", "job-2"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	failed.Status = model.JobStatusFailed
	if err := s.Put(ctx, failed); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, created, err = s.Reserve(ctx, "0xaaa", "work-00000002", "job-10")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !created {
		t.Error("failed job must release its reservation")
	}
}

func TestListByUserPrunesExpired(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	job := testJob("job-1", "0xaaa", "work-00000001", time.Now())
	job.Status = model.JobStatusConfirmed
	if err := s.Put(ctx, job); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Simulate retention expiry of the record while the index remains.
	mr.FastForward(25 * time.Hour)

	jobs, err := s.ListByUser(ctx, "0xaaa")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expired job should be pruned, got %d", len(jobs))
	}
}

func TestListUsers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testJob("job-1", "0xaaa", "work-00000001", time.Now())); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, testJob("job-2", "0xbbb", "work-00000002", time.Now())); err != nil {
		t.Fatalf("Put: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %v", users)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job := testJob("job-1", "0xaaa", "work-00000001", time.Now())
	if err := s.Put(ctx, job); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, job); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Get(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	jobs, err := s.ListByUser(ctx, "0xaaa")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("index should be empty after delete, got %d", len(jobs))
	}
}
