package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/repositories"
)

// In-memory fakes implementing the repository interfaces, so service
// behavior can be tested without Postgres or Redis.

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]models.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]models.Task)}
}

func (r *fakeTaskRepo) Insert(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = *task
	return nil
}

func (r *fakeTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := task
	return &copied, nil
}

func (r *fakeTaskRepo) ListActive(ctx context.Context) ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tasks []*models.Task
	for _, task := range r.tasks {
		if !task.IsDeleted {
			copied := task
			tasks = append(tasks, &copied)
		}
	}
	return tasks, nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.tasks[task.ID] = *task
	return nil
}

type fakeQueueRepo struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]models.SyncQueueEntry
	deadLetters []models.DeadLetterEntry

	enqueueErr       error
	updateFailureErr error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{entries: make(map[uuid.UUID]models.SyncQueueEntry)}
}

func (r *fakeQueueRepo) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		return r.enqueueErr
	}
	r.entries[entry.ID] = *entry
	return nil
}

func (r *fakeQueueRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := entry
	return &copied, nil
}

func (r *fakeQueueRepo) ListRetryable(ctx context.Context) ([]*models.SyncQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []*models.SyncQueueEntry
	for _, entry := range r.entries {
		if entry.Status == models.QueueStatusPending || entry.Status == models.QueueStatusError {
			copied := entry
			entries = append(entries, &copied)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TaskID != entries[j].TaskID {
			return entries[i].TaskID.String() < entries[j].TaskID.String()
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (r *fakeQueueRepo) MarkInFlight(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if entry, ok := r.entries[id]; ok {
			entry.Status = models.QueueStatusInProgress
			r.entries[id] = entry
		}
	}
	return nil
}

func (r *fakeQueueRepo) MarkSynced(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		entry.Status = models.QueueStatusSynced
		entry.ErrorMessage = nil
		r.entries[id] = entry
	}
	return nil
}

func (r *fakeQueueRepo) UpdateFailure(ctx context.Context, id uuid.UUID, retryCount int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateFailureErr != nil {
		return r.updateFailureErr
	}
	entry, ok := r.entries[id]
	if !ok {
		return repositories.ErrNotFound
	}
	entry.RetryCount = retryCount
	entry.ErrorMessage = &errorMessage
	entry.Status = models.QueueStatusError
	r.entries[id] = entry
	return nil
}

func (r *fakeQueueRepo) MoveToDeadLetter(ctx context.Context, entry *models.SyncQueueEntry, errorMessage string, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLetters = append(r.deadLetters, models.DeadLetterEntry{
		ID:           entry.ID,
		TaskID:       entry.TaskID,
		Operation:    entry.Operation,
		Data:         entry.Data,
		RetryCount:   entry.RetryCount,
		ErrorMessage: &errorMessage,
		CreatedAt:    entry.CreatedAt,
		FailedAt:     failedAt,
	})
	delete(r.entries, entry.ID)
	return nil
}

func (r *fakeQueueRepo) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.QueueStatus]int)
	for _, entry := range r.entries {
		counts[entry.Status]++
	}
	return counts, nil
}

func (r *fakeQueueRepo) ListDeadLetters(ctx context.Context) ([]*models.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []*models.DeadLetterEntry
	for i := range r.deadLetters {
		copied := r.deadLetters[i]
		entries = append(entries, &copied)
	}
	return entries, nil
}

func (r *fakeQueueRepo) CountDeadLetters(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deadLetters), nil
}

type fakeRemoteTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]models.Task
}

func newFakeRemoteTaskRepo() *fakeRemoteTaskRepo {
	return &fakeRemoteTaskRepo{tasks: make(map[uuid.UUID]models.Task)}
}

func (r *fakeRemoteTaskRepo) GetByClientID(ctx context.Context, clientID uuid.UUID) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[clientID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := task
	return &copied, nil
}

func (r *fakeRemoteTaskRepo) Upsert(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tasks[task.ID]; ok && task.ServerID == nil {
		task.ServerID = existing.ServerID
	}
	r.tasks[task.ID] = *task
	return nil
}

type fakeSyncStateRepo struct {
	mu       sync.Mutex
	lastSync *time.Time
	online   *bool
}

func (r *fakeSyncStateRepo) SetLastSyncTime(ctx context.Context, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSync = &t
	return nil
}

func (r *fakeSyncStateRepo) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSync == nil {
		return time.Time{}, repositories.ErrNotFound
	}
	return *r.lastSync, nil
}

func (r *fakeSyncStateRepo) SetConnectivity(ctx context.Context, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = &online
	return nil
}

func (r *fakeSyncStateRepo) GetConnectivity(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.online == nil {
		return false, repositories.ErrNotFound
	}
	return *r.online, nil
}

// fakeChecker reports a scripted connectivity answer.
type fakeChecker struct {
	online bool
}

func (c *fakeChecker) CheckHealth(ctx context.Context) bool {
	return c.online
}

// authoritySender routes batch pushes straight into an AuthorityService, so
// cycle tests exercise the real wire contract end to end without HTTP.
type authoritySender struct {
	authority *AuthorityService
}

func (s *authoritySender) PushBatch(ctx context.Context, batch models.SyncBatchRequest) (*models.SyncBatchResponse, error) {
	return s.authority.ProcessBatch(ctx, batch)
}

// scriptedSender returns canned responses or errors.
type scriptedSender struct {
	mu        sync.Mutex
	responses []*models.SyncBatchResponse
	err       error
	requests  []models.SyncBatchRequest
}

func (s *scriptedSender) PushBatch(ctx context.Context, batch models.SyncBatchRequest) (*models.SyncBatchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, batch)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}
