package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prasadrv/tasksync/internal/models"
)

type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

func (r *PostgresTaskRepository) Insert(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (id, title, description, completed, created_at, updated_at,
	                             is_deleted, sync_status, server_id, last_synced_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
		task.IsDeleted,
		task.SyncStatus,
		task.ServerID,
		task.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetByID returns the task regardless of its soft-delete flag. Conflict
// application needs to reach soft-deleted rows; callers that must exclude
// them check IsDeleted themselves.
func (r *PostgresTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT id, title, description, completed, created_at, updated_at,
	                 is_deleted, sync_status, server_id, last_synced_at
	          FROM tasks
	          WHERE id = $1`

	var task models.Task
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.IsDeleted,
		&task.SyncStatus,
		&task.ServerID,
		&task.LastSyncedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}
	return &task, nil
}

func (r *PostgresTaskRepository) ListActive(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT id, title, description, completed, created_at, updated_at,
	                 is_deleted, sync_status, server_id, last_synced_at
	          FROM tasks
	          WHERE is_deleted = FALSE
	          ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var task models.Task
		err := rows.Scan(
			&task.ID,
			&task.Title,
			&task.Description,
			&task.Completed,
			&task.CreatedAt,
			&task.UpdatedAt,
			&task.IsDeleted,
			&task.SyncStatus,
			&task.ServerID,
			&task.LastSyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// Update is a full replace by id; soft delete comes through here as an
// update with is_deleted = true.
func (r *PostgresTaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `UPDATE tasks
	          SET title = $2,
	              description = $3,
	              completed = $4,
	              updated_at = $5,
	              is_deleted = $6,
	              sync_status = $7,
	              server_id = $8,
	              last_synced_at = $9
	          WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.UpdatedAt,
		task.IsDeleted,
		task.SyncStatus,
		task.ServerID,
		task.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
