package repository

import (
	"context"
	"fmt"
	"time"

	"awards-api/internal/domain"
	"awards-api/pkg/database"

	"github.com/jackc/pgx/v5"
)

type outboxRepository struct {
	db *database.PostgresDB
}

// NewOutboxRepository creates a new outbox repository backed by PostgreSQL.
func NewOutboxRepository(db *database.PostgresDB) OutboxRepository {
	return &outboxRepository{db: db}
}

const outboxColumns = `
	id, event_type, target, payload, status, attempt_count,
	COALESCE(last_error, ''), next_attempt_at, claimed_at, created_at, updated_at
`

func scanOutboxEntry(row pgx.Row) (*domain.OutboxEntry, error) {
	var entry domain.OutboxEntry
	err := row.Scan(
		&entry.ID,
		&entry.EventType,
		&entry.Target,
		&entry.Payload,
		&entry.Status,
		&entry.AttemptCount,
		&entry.LastError,
		&entry.NextAttemptAt,
		&entry.ClaimedAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ClaimBatch atomically flips up to limit due pending entries to processing.
// The inner SELECT takes row locks with SKIP LOCKED and the UPDATE is a
// compare-and-set on status, so overlapping dispatcher instances never claim
// the same entry twice.
func (r *outboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	query := `
		UPDATE outbox_entries SET
			status = 'processing',
			claimed_at = NOW(),
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_entries
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING ` + outboxColumns + `
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}
	defer rows.Close()

	var entries []*domain.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// MarkDone marks a processing entry as delivered and clears its error
func (r *outboxRepository) MarkDone(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_entries SET
			status = 'done',
			last_error = NULL,
			claimed_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry done: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("outbox entry %s not in processing state", id)
	}

	return nil
}

// MarkRetry returns a processing entry to pending for a later attempt
func (r *outboxRepository) MarkRetry(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	query := `
		UPDATE outbox_entries SET
			status = 'pending',
			attempt_count = $2,
			last_error = $3,
			next_attempt_at = $4,
			claimed_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.Pool.Exec(ctx, query, id, attemptCount, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry for retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("outbox entry %s not in processing state", id)
	}

	return nil
}

// MarkDead dead-letters a processing entry, preserving its error for
// operator inspection
func (r *outboxRepository) MarkDead(ctx context.Context, id string, lastError string) error {
	query := `
		UPDATE outbox_entries SET
			status = 'dead',
			last_error = $2,
			claimed_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.Pool.Exec(ctx, query, id, lastError)
	if err != nil {
		return fmt.Errorf("failed to dead-letter outbox entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("outbox entry %s not in processing state", id)
	}

	return nil
}

// ReapStale recovers entries stuck in processing after a dispatcher crash
func (r *outboxRepository) ReapStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := `
		UPDATE outbox_entries SET
			status = 'pending',
			next_attempt_at = NOW(),
			claimed_at = NULL,
			updated_at = NOW()
		WHERE status = 'processing' AND claimed_at < $1
	`

	result, err := r.db.Pool.Exec(ctx, query, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale outbox entries: %w", err)
	}

	return result.RowsAffected(), nil
}

// List lists entries matching a filter, newest first
func (r *outboxRepository) List(ctx context.Context, filter domain.OutboxFilter) ([]*domain.OutboxEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_entries
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR event_type = $2)
		  AND ($3 = '' OR target = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`

	rows, err := r.db.Pool.Query(ctx, query,
		string(filter.Status), string(filter.EventType), string(filter.Target), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// CountByStatus returns entry counts grouped by status
func (r *outboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM outbox_entries GROUP BY status`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OutboxStatus]int64)
	for rows.Next() {
		var status domain.OutboxStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outbox count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// Retry resets a dead entry to pending for manual replay
func (r *outboxRepository) Retry(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE outbox_entries SET
			status = 'pending',
			attempt_count = 0,
			last_error = NULL,
			next_attempt_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'dead'
	`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to retry outbox entry: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
