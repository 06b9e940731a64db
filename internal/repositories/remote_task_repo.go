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

// PostgresRemoteTaskRepository backs the authority side of the batch
// endpoint. It keeps its own table, keyed by the client-assigned task id,
// with the server-assigned id alongside.
type PostgresRemoteTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRemoteTaskRepository(pool *pgxpool.Pool) *PostgresRemoteTaskRepository {
	return &PostgresRemoteTaskRepository{pool: pool}
}

func (r *PostgresRemoteTaskRepository) GetByClientID(ctx context.Context, clientID uuid.UUID) (*models.Task, error) {
	query := `SELECT client_id, title, description, completed, created_at, updated_at,
	                 is_deleted, server_id
	          FROM remote_tasks
	          WHERE client_id = $1`

	var task models.Task
	err := r.pool.QueryRow(ctx, query, clientID).Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.IsDeleted,
		&task.ServerID,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get remote task: %w", err)
	}

	task.SyncStatus = models.SyncStatusSynced
	return &task, nil
}

func (r *PostgresRemoteTaskRepository) Upsert(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO remote_tasks (client_id, title, description, completed, created_at, updated_at, is_deleted, server_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (client_id) DO UPDATE
	          SET title = EXCLUDED.title,
	              description = EXCLUDED.description,
	              completed = EXCLUDED.completed,
	              updated_at = EXCLUDED.updated_at,
	              is_deleted = EXCLUDED.is_deleted`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
		task.IsDeleted,
		task.ServerID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert remote task: %w", err)
	}
	return nil
}
