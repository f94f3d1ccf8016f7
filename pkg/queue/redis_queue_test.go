package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, cfg Config) *MailQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if cfg.Stream == "" {
		cfg.Stream = "test:mail"
	}
	q, err := NewMailQueue(client, cfg, nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func waitForStatus(t *testing.T, q *MailQueue, id, status string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, status)
	return Job{}
}

func TestMailQueueRetriesThenSucceeds(t *testing.T) {
	q := newTestQueue(t, Config{RetryDelay: time.Millisecond, Block: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	q.Start(ctx, 1, func(_ context.Context, job Job) error {
		if job.OrderRef != "ESC-202500001" || job.Kind != KindOrderConfirmation {
			t.Errorf("unexpected job %+v", job)
		}
		if calls.Add(1) == 1 {
			return errors.New("smtp unavailable")
		}
		return nil
	})

	job, err := q.Enqueue(ctx, "", "ESC-202500001")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForStatus(t, q, job.ID, StatusDone)
	if done.Attempts != 2 || done.Error != "" {
		t.Fatalf("done job = %+v", done)
	}
}

func TestMailQueueMarksFailedAfterMaxAttempts(t *testing.T) {
	q := newTestQueue(t, Config{MaxAttempts: 2, RetryDelay: time.Millisecond, Block: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Start(ctx, 2, func(context.Context, Job) error { return errors.New("mailbox full") })
	job, err := q.Enqueue(ctx, KindOrderConfirmation, "LIV-202500002")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	failed := waitForStatus(t, q, job.ID, StatusFailed)
	if failed.Attempts != 2 || failed.Error != "mailbox full" {
		t.Fatalf("failed job = %+v", failed)
	}
}

func TestMailQueueRequeueFailureKeepsPending(t *testing.T) {
	q := newTestQueue(t, Config{})
	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "", "LIV-202500003")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: "c1",
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("readgroup: %v %+v", err, streams)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeue(canceled, streams[0].Messages[0].ID, job); err == nil {
		t.Fatalf("expected requeue to fail on canceled context")
	}
	pending, err := q.client.XPending(ctx, q.cfg.Stream, q.cfg.Group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("pending = %d, want 1", pending.Count)
	}
}

func TestEnqueueRequiresReference(t *testing.T) {
	q := newTestQueue(t, Config{})
	if _, err := q.Enqueue(context.Background(), "", "  "); err == nil {
		t.Fatalf("expected error for empty reference")
	}
}
