package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prasadrv/tasksync/internal/models"
)

type PostgresSyncQueueRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncQueueRepository(pool *pgxpool.Pool) *PostgresSyncQueueRepository {
	return &PostgresSyncQueueRepository{pool: pool}
}

func (r *PostgresSyncQueueRepository) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	query := `INSERT INTO sync_queue (id, task_id, operation, data, created_at, retry_count, error_message, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.TaskID,
		entry.Operation,
		entry.Data,
		entry.CreatedAt,
		entry.RetryCount,
		entry.ErrorMessage,
		entry.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync entry: %w", err)
	}
	return nil
}

func (r *PostgresSyncQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncQueueEntry, error) {
	query := `SELECT id, task_id, operation, data, created_at, retry_count, error_message, status
	          FROM sync_queue
	          WHERE id = $1`

	var entry models.SyncQueueEntry
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&entry.ID,
		&entry.TaskID,
		&entry.Operation,
		&entry.Data,
		&entry.CreatedAt,
		&entry.RetryCount,
		&entry.ErrorMessage,
		&entry.Status,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

// ListRetryable returns entries awaiting transmission, both fresh pending
// ones and previously failed ones still below the retry ceiling, grouped by
// task and ordered by enqueue time within each task so mutations for one task
// are always transmitted in the order they happened.
func (r *PostgresSyncQueueRepository) ListRetryable(ctx context.Context) ([]*models.SyncQueueEntry, error) {
	query := `SELECT id, task_id, operation, data, created_at, retry_count, error_message, status
	          FROM sync_queue
	          WHERE status IN ('pending', 'error')
	          ORDER BY task_id, created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncQueueEntry
	for rows.Next() {
		var entry models.SyncQueueEntry
		err := rows.Scan(
			&entry.ID,
			&entry.TaskID,
			&entry.Operation,
			&entry.Data,
			&entry.CreatedAt,
			&entry.RetryCount,
			&entry.ErrorMessage,
			&entry.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

func (r *PostgresSyncQueueRepository) MarkInFlight(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE sync_queue SET status = 'in_progress' WHERE id = ANY($1)`

	_, err := r.pool.Exec(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to mark entries in flight: %w", err)
	}
	return nil
}

// MarkSynced is idempotent: marking an already-synced or already-removed
// entry is a no-op.
func (r *PostgresSyncQueueRepository) MarkSynced(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE sync_queue SET status = 'synced', error_message = NULL WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark entry synced: %w", err)
	}
	return nil
}

// UpdateFailure records a failed attempt. The entry moves to status error,
// which is still retryable: the next cycle drains it again.
func (r *PostgresSyncQueueRepository) UpdateFailure(ctx context.Context, id uuid.UUID, retryCount int, errorMessage string) error {
	query := `UPDATE sync_queue
	          SET retry_count = $2, error_message = $3, status = 'error'
	          WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, retryCount, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to record entry failure: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveToDeadLetter promotes an exhausted entry to the dead letter table and
// removes it from the active queue in a single transaction, so the entry can
// never exist in both places or in neither.
func (r *PostgresSyncQueueRepository) MoveToDeadLetter(ctx context.Context, entry *models.SyncQueueEntry, errorMessage string, failedAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin dead letter transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `INSERT INTO dead_letters (id, task_id, operation, data, retry_count, error_message, created_at, failed_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, insertQuery,
		entry.ID,
		entry.TaskID,
		entry.Operation,
		entry.Data,
		entry.RetryCount,
		errorMessage,
		entry.CreatedAt,
		failedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM sync_queue WHERE id = $1`, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dead letter transaction: %w", err)
	}
	return nil
}

func (r *PostgresSyncQueueRepository) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status models.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

func (r *PostgresSyncQueueRepository) ListDeadLetters(ctx context.Context) ([]*models.DeadLetterEntry, error) {
	query := `SELECT id, task_id, operation, data, retry_count, error_message, created_at, failed_at
	          FROM dead_letters
	          ORDER BY failed_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*models.DeadLetterEntry
	for rows.Next() {
		var entry models.DeadLetterEntry
		err := rows.Scan(
			&entry.ID,
			&entry.TaskID,
			&entry.Operation,
			&entry.Data,
			&entry.RetryCount,
			&entry.ErrorMessage,
			&entry.CreatedAt,
			&entry.FailedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return entries, nil
}

func (r *PostgresSyncQueueRepository) CountDeadLetters(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}
