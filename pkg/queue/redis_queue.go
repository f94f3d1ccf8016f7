package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// KindOrderConfirmation asks the mailer to send the order confirmation.
const KindOrderConfirmation = "order_confirmation"

// Job is a unit of mail work keyed by order reference.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	OrderRef  string    `json:"orderRef"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Handler processes one job. A returned error schedules a retry until
// MaxAttempts is reached.
type Handler func(ctx context.Context, job Job) error

type Config struct {
	Stream      string
	Group       string
	Consumer    string
	StatusTTL   time.Duration
	MaxAttempts int
	Block       time.Duration
	ClaimIdle   time.Duration
	RetryDelay  time.Duration
	MaxLen      int64
	BatchSize   int64
}

func (c Config) withDefaults() Config {
	if c.Group == "" {
		c.Group = "mailer"
	}
	if c.Consumer == "" {
		c.Consumer = uuid.NewString()
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = 7 * 24 * time.Hour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	return c
}

// MailQueue is an at-least-once job queue on a Redis stream with a consumer
// group. Job status is mirrored in a hash per job.
type MailQueue struct {
	client redis.UniversalClient
	cfg    Config
	logger *slog.Logger
	once   sync.Once
}

func NewMailQueue(client redis.UniversalClient, cfg Config, logger *slog.Logger) (*MailQueue, error) {
	if client == nil {
		return nil, errors.New("queue requires a redis client")
	}
	cfg.Stream = strings.TrimSpace(cfg.Stream)
	if cfg.Stream == "" {
		return nil, errors.New("queue stream required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MailQueue{client: client, cfg: cfg.withDefaults(), logger: logger}, nil
}

// Enqueue records a queued job for orderRef and appends it to the stream.
func (q *MailQueue) Enqueue(ctx context.Context, kind, orderRef string) (Job, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return Job{}, errors.New("order reference required")
	}
	if kind == "" {
		kind = KindOrderConfirmation
	}
	now := time.Now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		OrderRef:  orderRef,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.save(ctx, job); err != nil {
		return Job{}, fmt.Errorf("save job: %w", err)
	}
	if err := q.client.XAdd(ctx, q.addArgs(job)).Err(); err != nil {
		return Job{}, fmt.Errorf("xadd: %w", err)
	}
	return job, nil
}

// GetJob returns the stored status of a job.
func (q *MailQueue) GetJob(ctx context.Context, id string) (Job, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(data) == 0 {
		return Job{}, false, nil
	}
	return decodeJob(id, data), true, nil
}

// Start launches concurrency consumers that run until ctx is done.
func (q *MailQueue) Start(ctx context.Context, concurrency int, handle Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		go q.consume(ctx, fmt.Sprintf("%s-%d", q.cfg.Consumer, i), handle)
	}
}

func (q *MailQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.logger.Warn("queue group create failed", "stream", q.cfg.Stream, "err", err)
		}
	})
}

func (q *MailQueue) consume(ctx context.Context, consumer string, handle Handler) {
	for ctx.Err() == nil {
		claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.cfg.Stream,
			Group:    q.cfg.Group,
			Consumer: consumer,
			MinIdle:  q.cfg.ClaimIdle,
			Start:    "0-0",
			Count:    q.cfg.BatchSize,
		}).Result()
		if err == nil {
			for _, msg := range claimed {
				q.process(ctx, msg, handle)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    q.cfg.BatchSize,
			Block:    q.cfg.Block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.logger.Warn("queue read failed", "stream", q.cfg.Stream, "err", err)
				sleep(ctx, time.Second)
			}
			continue
		}
		for _, s := range streams {
			for _, msg := range s.Messages {
				q.process(ctx, msg, handle)
			}
		}
	}
}

func (q *MailQueue) process(ctx context.Context, msg redis.XMessage, handle Handler) {
	id, _ := msg.Values["job_id"].(string)
	ref, _ := msg.Values["order_ref"].(string)
	kind, _ := msg.Values["kind"].(string)
	if id == "" || ref == "" {
		q.logger.Warn("queue dropping malformed message", "msg_id", msg.ID)
		q.ack(ctx, msg.ID)
		return
	}
	job, _, err := q.GetJob(ctx, id)
	if err != nil {
		q.logger.Warn("queue load job failed", "job_id", id, "err", err)
		return
	}
	if job.ID == "" {
		job = Job{ID: id, CreatedAt: time.Now().UTC()}
	}
	job.Kind, job.OrderRef = kind, ref
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := q.save(ctx, job); err != nil {
		q.logger.Warn("queue save job failed", "job_id", id, "err", err)
		return
	}

	herr := handle(ctx, job)
	job.UpdatedAt = time.Now().UTC()
	switch {
	case herr == nil:
		job.Status, job.Error = StatusDone, ""
		_ = q.save(ctx, job)
		q.ack(ctx, msg.ID)
	case job.Attempts >= q.cfg.MaxAttempts:
		job.Status, job.Error = StatusFailed, herr.Error()
		_ = q.save(ctx, job)
		q.ack(ctx, msg.ID)
		q.logger.Error("mail job failed", "job_id", id, "order_ref", ref, "attempts", job.Attempts, "err", herr)
	default:
		job.Status, job.Error = StatusQueued, herr.Error()
		_ = q.save(ctx, job)
		q.logger.Warn("mail job retry", "job_id", id, "order_ref", ref, "attempts", job.Attempts, "err", herr)
		if !sleep(ctx, q.cfg.RetryDelay) {
			return
		}
		if err := q.requeue(ctx, msg.ID, job); err != nil {
			q.logger.Warn("queue requeue failed", "job_id", id, "err", err)
		}
	}
}

func (q *MailQueue) ack(ctx context.Context, msgID string) {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, msgID)
	pipe.XDel(ctx, q.cfg.Stream, msgID)
	_, _ = pipe.Exec(ctx)
}

// requeue appends a fresh message and acknowledges the old one atomically,
// so a failure leaves the original pending for XAUTOCLAIM.
func (q *MailQueue) requeue(ctx context.Context, msgID string, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.addArgs(job))
	pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, msgID)
	pipe.XDel(ctx, q.cfg.Stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *MailQueue) addArgs(job Job) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.cfg.Stream,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":    job.ID,
			"kind":      job.Kind,
			"order_ref": job.OrderRef,
		},
	}
}

func (q *MailQueue) save(ctx context.Context, job Job) error {
	key := q.jobKey(job.ID)
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"kind":      job.Kind,
		"orderRef":  job.OrderRef,
		"status":    job.Status,
		"error":     job.Error,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, q.cfg.StatusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *MailQueue) jobKey(id string) string {
	return "job:" + q.cfg.Stream + ":" + id
}

func decodeJob(id string, data map[string]string) Job {
	job := Job{
		ID:       id,
		Kind:     data["kind"],
		OrderRef: data["orderRef"],
		Status:   data["status"],
		Error:    data["error"],
	}
	job.Attempts, _ = strconv.Atoi(data["attempts"])
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, data["createdAt"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, data["updatedAt"])
	return job
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
