package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"price_tracker/models"
)

// Delivery is one claimed task. The queue keeps the row locked to this
// consumer until Ack or Nack; a crashed consumer's claim expires after the
// claim timeout and the row becomes consumable again.
type Delivery struct {
	ID         int64
	Task       models.EnrichmentTask
	EnqueuedAt time.Time
}

type Options struct {
	MaxRetries   int
	TTL          time.Duration
	ClaimTimeout time.Duration
	Backoff      Backoff
	Now          func() time.Time
}

// WorkQueue is a durable Postgres-backed task queue with at-least-once
// delivery, per-message retry backoff, a dead-letter table and a message TTL.
// Claims use FOR UPDATE SKIP LOCKED so competing consumers never collide.
type WorkQueue struct {
	pool *pgxpool.Pool
	opts Options
}

func New(pool *pgxpool.Pool, opts Options) *WorkQueue {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 10 * time.Minute
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WorkQueue{pool: pool, opts: opts}
}

// Publish enqueues a task. Durable: the row survives process restarts.
func (q *WorkQueue) Publish(ctx context.Context, task models.EnrichmentTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	now := q.opts.Now()
	query := `
		INSERT INTO enrichment_tasks (payload, attempt_count, enqueued_at, available_at)
		VALUES ($1, $2, $3, $3)`

	_, err = q.pool.Exec(ctx, query, payload, task.AttemptCount, now)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Consume claims at most one available task. Returns (nil, nil) when the
// queue has nothing consumable right now.
func (q *WorkQueue) Consume(ctx context.Context, consumer string) (*Delivery, error) {
	now := q.opts.Now()

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, payload, attempt_count, enqueued_at
		FROM enrichment_tasks
		WHERE available_at <= $1
		  AND (claimed_at IS NULL OR claimed_at < $2)
		ORDER BY available_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var (
		id         int64
		payload    []byte
		attempts   int
		enqueuedAt time.Time
	)
	err = tx.QueryRow(ctx, query, now, q.staleClaimCutoff(now)).Scan(&id, &payload, &attempts, &enqueuedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	// Expired messages are dead-lettered at claim time as well as by the
	// sweeper, so a stalled sweeper cannot leak stale work to consumers.
	if q.expired(enqueuedAt, now) {
		if err := deadLetter(ctx, tx, id, payload, attempts, enqueuedAt, "expired", now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return q.Consume(ctx, consumer)
	}

	_, err = tx.Exec(ctx,
		`UPDATE enrichment_tasks SET claimed_at = $2, claimed_by = $3 WHERE id = $1`,
		id, now, consumer,
	)
	if err != nil {
		return nil, fmt.Errorf("mark claimed: %w", err)
	}

	var task models.EnrichmentTask
	if err := json.Unmarshal(payload, &task); err != nil {
		// Undecodable payloads can never succeed; route straight to DLQ.
		if dlErr := deadLetter(ctx, tx, id, payload, attempts, enqueuedAt, "malformed", now); dlErr != nil {
			return nil, dlErr
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return q.Consume(ctx, consumer)
	}
	task.AttemptCount = attempts

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Delivery{ID: id, Task: task, EnqueuedAt: enqueuedAt}, nil
}

// Ack removes a delivered task permanently.
func (q *WorkQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM enrichment_tasks WHERE id = $1`, d.ID)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

// Nack returns a task for redelivery with an incremented attempt count and a
// backoff delay. Once attempts reach MaxRetries the task moves to the
// dead-letter table instead.
func (q *WorkQueue) Nack(ctx context.Context, d *Delivery) error {
	now := q.opts.Now()
	attempts := d.Task.AttemptCount + 1

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	exhausted, delay := q.nackDisposition(attempts)
	if exhausted {
		payload, err := json.Marshal(d.Task)
		if err != nil {
			return fmt.Errorf("marshal task: %w", err)
		}
		if err := deadLetter(ctx, tx, d.ID, payload, attempts, d.EnqueuedAt, "max_retries", now); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	task := d.Task
	task.AttemptCount = attempts
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE enrichment_tasks
		SET payload = $2, attempt_count = $3, available_at = $4, claimed_at = NULL, claimed_by = NULL
		WHERE id = $1`,
		d.ID, payload, attempts, now.Add(delay),
	)
	if err != nil {
		return fmt.Errorf("nack: %w", err)
	}
	return tx.Commit(ctx)
}

// SweepExpired dead-letters every message older than the TTL, claimed or not.
// Returns the number of messages moved.
func (q *WorkQueue) SweepExpired(ctx context.Context) (int, error) {
	now := q.opts.Now()
	query := `
		WITH expired AS (
			DELETE FROM enrichment_tasks
			WHERE enqueued_at < $1
			RETURNING payload, attempt_count, enqueued_at
		)
		INSERT INTO dead_letters (payload, attempt_count, enqueued_at, reason, dead_at)
		SELECT payload, attempt_count, enqueued_at, 'expired', $2 FROM expired`

	tag, err := q.pool.Exec(ctx, query, now.Add(-q.opts.TTL), now)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// expired reports whether a message enqueued at t has outlived the TTL at now.
// The boundary is exclusive: a message exactly TTL old is still live.
func (q *WorkQueue) expired(enqueuedAt, now time.Time) bool {
	return now.Sub(enqueuedAt) > q.opts.TTL
}

// staleClaimCutoff is the claim timestamp below which an in-flight message
// counts as abandoned and becomes consumable again.
func (q *WorkQueue) staleClaimCutoff(now time.Time) time.Time {
	return now.Add(-q.opts.ClaimTimeout)
}

// nackDisposition routes a nacked message: dead-letter once the incremented
// attempt count reaches MaxRetries, otherwise redeliver after a backoff delay.
func (q *WorkQueue) nackDisposition(attempts int) (exhausted bool, delay time.Duration) {
	if attempts >= q.opts.MaxRetries {
		return true, 0
	}
	return false, q.opts.Backoff.Delay(attempts)
}

// Depth reports how many tasks are waiting or in flight.
func (q *WorkQueue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM enrichment_tasks`).Scan(&n)
	return n, err
}

func deadLetter(ctx context.Context, tx pgx.Tx, id int64, payload []byte, attempts int, enqueuedAt time.Time, reason string, now time.Time) error {
	tag, err := tx.Exec(ctx, `DELETE FROM enrichment_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("dead letter delete: %w", err)
	}
	// The sweeper can race an in-flight delivery. If the row is already gone
	// it was dead-lettered elsewhere; inserting again would put the task on
	// the dead-letter channel twice.
	if tag.RowsAffected() == 0 {
		return nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letters (payload, attempt_count, enqueued_at, reason, dead_at)
		VALUES ($1, $2, $3, $4, $5)`,
		payload, attempts, enqueuedAt, reason, now,
	)
	if err != nil {
		return fmt.Errorf("dead letter: %w", err)
	}
	return nil
}
