package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/repositories"
)

// SyncQueueService owns the retry and dead-letter policy on top of the queue
// repository. The repository only knows how to persist transitions; deciding
// when an entry has exhausted its retries happens here.
type SyncQueueService struct {
	queueRepo  repositories.SyncQueueRepository
	maxRetries int
}

func NewSyncQueueService(queueRepo repositories.SyncQueueRepository, maxRetries int) *SyncQueueService {
	return &SyncQueueService{
		queueRepo:  queueRepo,
		maxRetries: maxRetries,
	}
}

// Enqueue appends a pending entry carrying a point-in-time JSON snapshot of
// the task. A storage failure propagates to the caller: losing a queue entry
// means losing a tracked mutation, so this must never fail silently.
func (s *SyncQueueService) Enqueue(ctx context.Context, task *models.Task, operation models.SyncOperation) (*models.SyncQueueEntry, error) {
	snapshot, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot task %s: %w", task.ID, err)
	}

	entry := &models.SyncQueueEntry{
		ID:        uuid.New(),
		TaskID:    task.ID,
		Operation: operation,
		Data:      snapshot,
		CreatedAt: time.Now().UTC(),
		Status:    models.QueueStatusPending,
	}

	if err := s.queueRepo.Enqueue(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// DrainCandidates returns all entries awaiting transmission, fresh and
// previously failed alike, in (task_id, created_at) order. It is read-only;
// claiming entries as in-flight is the orchestrator's call.
func (s *SyncQueueService) DrainCandidates(ctx context.Context) ([]*models.SyncQueueEntry, error) {
	return s.queueRepo.ListRetryable(ctx)
}

func (s *SyncQueueService) MarkInFlight(ctx context.Context, entries []*models.SyncQueueEntry) error {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
		entry.Status = models.QueueStatusInProgress
	}
	return s.queueRepo.MarkInFlight(ctx, ids)
}

func (s *SyncQueueService) MarkSynced(ctx context.Context, id uuid.UUID) error {
	return s.queueRepo.MarkSynced(ctx, id)
}

// RecordFailure increments the entry's retry count. When the new count
// reaches the ceiling the entry is moved to the dead letter store and leaves
// the active queue for good; otherwise it moves to status error and remains a
// drain candidate for the next cycle.
func (s *SyncQueueService) RecordFailure(ctx context.Context, entry *models.SyncQueueEntry, errorMessage string) error {
	newCount := entry.RetryCount + 1

	if newCount >= s.maxRetries {
		entry.RetryCount = newCount
		if err := s.queueRepo.MoveToDeadLetter(ctx, entry, errorMessage, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to dead-letter entry %s: %w", entry.ID, err)
		}
		return nil
	}

	if err := s.queueRepo.UpdateFailure(ctx, entry.ID, newCount, errorMessage); err != nil {
		return fmt.Errorf("failed to record failure for entry %s: %w", entry.ID, err)
	}
	entry.RetryCount = newCount
	entry.ErrorMessage = &errorMessage
	entry.Status = models.QueueStatusError
	return nil
}

func (s *SyncQueueService) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	return s.queueRepo.CountByStatus(ctx)
}

func (s *SyncQueueService) ListDeadLetters(ctx context.Context) ([]*models.DeadLetterEntry, error) {
	return s.queueRepo.ListDeadLetters(ctx)
}

func (s *SyncQueueService) CountDeadLetters(ctx context.Context) (int, error) {
	return s.queueRepo.CountDeadLetters(ctx)
}
