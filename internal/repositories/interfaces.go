package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
)

type TaskRepository interface {
	Insert(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListActive(ctx context.Context) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
}

type SyncQueueRepository interface {
	Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncQueueEntry, error)
	ListRetryable(ctx context.Context) ([]*models.SyncQueueEntry, error)
	MarkInFlight(ctx context.Context, ids []uuid.UUID) error
	MarkSynced(ctx context.Context, id uuid.UUID) error
	UpdateFailure(ctx context.Context, id uuid.UUID, retryCount int, errorMessage string) error
	MoveToDeadLetter(ctx context.Context, entry *models.SyncQueueEntry, errorMessage string, failedAt time.Time) error
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
	ListDeadLetters(ctx context.Context) ([]*models.DeadLetterEntry, error)
	CountDeadLetters(ctx context.Context) (int, error)
}

// RemoteTaskRepository is the authority-side task table, keyed by the
// client-assigned task id.
type RemoteTaskRepository interface {
	GetByClientID(ctx context.Context, clientID uuid.UUID) (*models.Task, error)
	Upsert(ctx context.Context, task *models.Task) error
}

// SyncStateRepository tracks sync bookkeeping that lives outside the queue:
// the last successful sync time and a short-lived connectivity flag.
type SyncStateRepository interface {
	SetLastSyncTime(ctx context.Context, t time.Time) error
	GetLastSyncTime(ctx context.Context) (time.Time, error)
	SetConnectivity(ctx context.Context, online bool) error
	GetConnectivity(ctx context.Context) (bool, error)
}
