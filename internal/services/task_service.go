package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/repositories"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskService implements the local CRUD surface. Every mutation refreshes
// UpdatedAt, flips the task back to sync_status pending, and records exactly
// one queue entry carrying a snapshot of the task as mutated.
type TaskService struct {
	taskRepo repositories.TaskRepository
	queue    *SyncQueueService
}

func NewTaskService(taskRepo repositories.TaskRepository, queue *SyncQueueService) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		queue:    queue,
	}
}

type UpdateTaskParams struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (s *TaskService) Create(ctx context.Context, title, description string) (*models.Task, error) {
	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  models.SyncStatusPending,
	}

	if err := s.taskRepo.Insert(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, task, models.OperationCreate); err != nil {
		return nil, fmt.Errorf("failed to queue task create: %w", err)
	}

	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if task.IsDeleted {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context) ([]*models.Task, error) {
	return s.taskRepo.ListActive(ctx)
}

func (s *TaskService) Update(ctx context.Context, id uuid.UUID, params UpdateTaskParams) (*models.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		task.Title = *params.Title
	}
	if params.Description != nil {
		task.Description = *params.Description
	}
	if params.Completed != nil {
		task.Completed = *params.Completed
	}

	task.UpdatedAt = nextUpdateTime(task.UpdatedAt)
	task.SyncStatus = models.SyncStatusPending

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, task, models.OperationUpdate); err != nil {
		return nil, fmt.Errorf("failed to queue task update: %w", err)
	}

	return task, nil
}

// SoftDelete flags the task deleted via a full-replace update. The record
// stays in the store so a later conflict can still resolve against it.
func (s *TaskService) SoftDelete(ctx context.Context, id uuid.UUID) error {
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	task.IsDeleted = true
	task.UpdatedAt = nextUpdateTime(task.UpdatedAt)
	task.SyncStatus = models.SyncStatusPending

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return fmt.Errorf("failed to soft-delete task: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, task, models.OperationDelete); err != nil {
		return fmt.Errorf("failed to queue task delete: %w", err)
	}

	return nil
}

// nextUpdateTime keeps UpdatedAt strictly increasing per record even when two
// mutations land within the clock's resolution.
func nextUpdateTime(previous time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(previous) {
		return previous.Add(time.Millisecond)
	}
	return now
}
