package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/budget-tracker/internal/jobs"
)

func newJob(owner string) *jobs.SettleOwnerJob {
	return &jobs.SettleOwnerJob{
		OwnerID: owner,
		RunDate: civil.Date{Year: 2026, Month: 3, Day: 14},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	job := newJob("owner-1")
	if err := q.PublishSettleOwner(context.Background(), job); err != nil {
		t.Fatalf("PublishSettleOwner() error = %v", err)
	}

	if job.JobID == "" {
		t.Error("expected generated job ID")
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", job.MaxRetries)
	}

	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if saved.OwnerID != "owner-1" {
		t.Errorf("saved owner = %s, want owner-1", saved.OwnerID)
	}
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var processed atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		if _, ok := job.(*jobs.SettleOwnerJob); !ok {
			t.Errorf("unexpected job type %T", job)
		}
		processed.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := newJob("owner-1")
	if err := q.PublishSettleOwner(ctx, job); err != nil {
		t.Fatalf("PublishSettleOwner() error = %v", err)
	}

	waitFor(t, func() bool { return processed.Load() == 1 })
	waitFor(t, func() bool {
		saved, err := store.GetJob(ctx, job.JobID)
		return err == nil && saved.Status == jobs.JobStatusCompleted
	})
}

func TestQueueRetriesFailedJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := newJob("owner-1")
	if err := q.PublishSettleOwner(ctx, job); err != nil {
		t.Fatalf("PublishSettleOwner() error = %v", err)
	}

	waitFor(t, func() bool { return attempts.Load() >= 2 })
	waitFor(t, func() bool {
		saved, err := store.GetJob(ctx, job.JobID)
		return err == nil && saved.Status == jobs.JobStatusCompleted
	})
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := q.PublishSettleOwner(context.Background(), newJob("owner-1")); err == nil {
		t.Error("expected publish on closed queue to fail")
	}
}

func TestStopWaitsForWorkers(t *testing.T) {
	q := NewQueue(10, 2, NewStore())

	ctx := context.Background()
	if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error { return nil }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Stopping again is a no-op.
	if err := q.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
