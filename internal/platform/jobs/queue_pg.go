package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revclarity/revclarity/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type queuePG struct{ pool *pgxpool.Pool }

// NewQueuePG returns a Postgres-backed Queue.
func NewQueuePG(pool *pgxpool.Pool) Queue {
	return &queuePG{pool: pool}
}

func (q *queuePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return q.pool
}

const jobCols = `id, type, key, payload, status, attempts, max_attempts,
	last_error, run_at, created_at, updated_at`

func (q *queuePG) scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Type, &j.Key, &j.Payload, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.LastError, &j.RunAt, &j.CreatedAt, &j.UpdatedAt)
	return &j, err
}

// Enqueue inserts the job. The partial unique index on active keys is the
// dedup authority: two concurrent enqueues for the same key cannot both land,
// the loser gets ErrDuplicateKey. The ActiveForKey pre-check is only a fast
// path that spares the insert in the common case.
func (q *queuePG) Enqueue(ctx context.Context, job *Job) error {
	if job.Key != "" {
		active, err := q.ActiveForKey(ctx, job.Key)
		if err != nil {
			return err
		}
		if active {
			return ErrDuplicateKey
		}
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	_, err := q.conn(ctx).Exec(ctx, `
		INSERT INTO job (id, type, key, payload, status, attempts, max_attempts, run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		job.ID, job.Type, job.Key, job.Payload, StatusQueued, 0, job.MaxAttempts, job.RunAt)
	if isActiveKeyConflict(err) {
		return ErrDuplicateKey
	}
	return err
}

// isActiveKeyConflict reports whether err is the unique violation raised by
// idx_job_key_active when two inserts race the same active key.
func isActiveKeyConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "idx_job_key_active"
}

// Dequeue claims the oldest runnable job with FOR UPDATE SKIP LOCKED so
// concurrent workers never claim the same row.
func (q *queuePG) Dequeue(ctx context.Context) (*Job, error) {
	job, err := q.scanJob(q.conn(ctx).QueryRow(ctx, `
		UPDATE job SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM job
			WHERE status = $2 AND run_at <= NOW()
			ORDER BY run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobCols,
		StatusRunning, StatusQueued))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobs
		}
		return nil, err
	}
	return job, nil
}

func (q *queuePG) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := q.conn(ctx).Exec(ctx,
		`UPDATE job SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, StatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *queuePG) Fail(ctx context.Context, id uuid.UUID, msg string, retryAt *time.Time) error {
	if retryAt != nil {
		tag, err := q.conn(ctx).Exec(ctx,
			`UPDATE job SET status = $2, last_error = $3, run_at = $4, updated_at = NOW() WHERE id = $1`,
			id, StatusQueued, msg, *retryAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrJobNotFound
		}
		return nil
	}
	tag, err := q.conn(ctx).Exec(ctx,
		`UPDATE job SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		id, StatusFailed, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *queuePG) ActiveForKey(ctx context.Context, key string) (bool, error) {
	var active bool
	err := q.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job WHERE key = $1 AND status IN ($2, $3))`,
		key, StatusQueued, StatusRunning).Scan(&active)
	return active, err
}
