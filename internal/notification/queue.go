package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"bidding-marketplace/internal/metrics"
	"bidding-marketplace/utils"

	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned by Enqueue once the queue has been stopped
var ErrQueueClosed = errors.New("notification queue closed")

// Task is one message waiting for delivery. Key is forwarded to the provider as
// an idempotency key so retried sends are not duplicated.
type Task struct {
	Key     string
	BidID   string
	Kind    Kind
	Message Message
}

// QueueConfig tunes delivery
type QueueConfig struct {
	Workers        int
	Size           int
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.Size < 1 {
		c.Size = 256
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	return c
}

// Queue delivers tasks on a pool of workers with bounded, backed-off retries.
// Each task is delivered independently, so one slow recipient does not hold
// back the other message of the same change.
type Queue struct {
	sender  Sender
	cfg     QueueConfig
	metrics metrics.Recorder

	tasks    chan Task
	quit     chan struct{}
	mu       sync.RWMutex
	closed   bool
	group    *errgroup.Group
	stopOnce sync.Once
}

// NewQueue creates a stopped queue; call Start to run its workers
func NewQueue(sender Sender, cfg QueueConfig, rec metrics.Recorder) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		sender:  sender,
		cfg:     cfg,
		metrics: metrics.OrNop(rec),
		tasks:   make(chan Task, cfg.Size),
		quit:    make(chan struct{}),
	}
}

// Start launches the workers. Deliveries in flight are cancelled with ctx.
func (q *Queue) Start(ctx context.Context) {
	g := &errgroup.Group{}
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			for task := range q.tasks {
				q.deliver(ctx, task)
			}
			return nil
		})
	}
	q.group = g
}

// Enqueue hands a task to the workers, waiting for room while ctx allows
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.quit:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks, lets the workers drain the backlog and waits for them
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.quit)

		q.mu.Lock()
		q.closed = true
		close(q.tasks)
		q.mu.Unlock()

		if q.group != nil {
			_ = q.group.Wait()
		}
	})
}

// deliver sends one task, retrying temporary failures until the attempts run out
func (q *Queue) deliver(ctx context.Context, task Task) {
	fields := map[string]any{
		"bid_id":         task.BidID,
		"kind":           task.Kind.String(),
		"recipient_role": string(task.Message.Role),
		"recipient":      task.Message.To,
	}

	backoff := q.cfg.BackoffBase
	for attempt := 1; ; attempt++ {
		err := q.attempt(ctx, task)
		if err == nil {
			q.metrics.RecordNotificationSent(string(task.Message.Role))
			utils.Info("notification sent", withAttempt(fields, attempt, nil))
			return
		}

		if attempt >= q.cfg.MaxAttempts || !retryable(err) || ctx.Err() != nil {
			q.metrics.RecordNotificationFailed(string(task.Message.Role))
			utils.Error("notification delivery failed", withAttempt(fields, attempt, err))
			return
		}

		utils.Warn("notification delivery failed, retrying", withAttempt(fields, attempt, err))
		if !sleep(ctx, backoff) {
			q.metrics.RecordNotificationFailed(string(task.Message.Role))
			utils.Error("notification delivery abandoned", withAttempt(fields, attempt, ctx.Err()))
			return
		}
		backoff = min(backoff*2, q.cfg.BackoffMax)
	}
}

func (q *Queue) attempt(ctx context.Context, task Task) error {
	actx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := q.sender.Deliver(actx, task.Message.To, task.Message.Subject, task.Message.HTML, task.Key)
	q.metrics.RecordSendLatency(time.Since(start))
	return err
}

// retryable treats errors as temporary unless they say otherwise
func retryable(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

func withAttempt(fields map[string]any, attempt int, err error) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["attempt"] = attempt
	if err != nil {
		out["error"] = err.Error()
	}
	return out
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
