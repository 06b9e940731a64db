package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/repositories"
	"github.com/prasadrv/tasksync/internal/utils"
)

// batchSender is the slice of the remote client the transmitter needs.
type batchSender interface {
	PushBatch(ctx context.Context, batch models.SyncBatchRequest) (*models.SyncBatchResponse, error)
}

// SyncError is one structured failure surfaced in a cycle summary.
type SyncError struct {
	TaskID    uuid.UUID            `json:"task_id"`
	Operation models.SyncOperation `json:"operation"`
	Message   string               `json:"message"`
	Timestamp time.Time            `json:"timestamp"`
}

// ApplyResult accounts for what happened to one batch.
type ApplyResult struct {
	Synced    int
	Conflicts int
	Failed    int
	Errors    []SyncError
}

// BatchTransmitter packages pending queue entries into an integrity-checked
// batch, pushes it to the authority, and fans the per-item verdicts back into
// queue and task state.
type BatchTransmitter struct {
	sender   batchSender
	queue    *SyncQueueService
	taskRepo repositories.TaskRepository
}

func NewBatchTransmitter(sender batchSender, queue *SyncQueueService, taskRepo repositories.TaskRepository) *BatchTransmitter {
	return &BatchTransmitter{
		sender:   sender,
		queue:    queue,
		taskRepo: taskRepo,
	}
}

// Send serializes the ordered entry list once, hashes exactly those bytes,
// and pushes the batch. The serialized bytes are embedded verbatim in the
// request so the authority can recompute the same digest.
func (t *BatchTransmitter) Send(ctx context.Context, entries []*models.SyncQueueEntry) (*models.SyncBatchResponse, error) {
	items, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize batch items: %w", err)
	}

	batch := models.SyncBatchRequest{
		Items:           items,
		ClientTimestamp: time.Now().UTC(),
		Checksum:        utils.Checksum(items),
	}

	return t.sender.PushBatch(ctx, batch)
}

// FailAll routes every entry in the batch through failure accounting. Used
// when the whole transmission failed: no response at all, or an integrity
// rejection, which is treated the same way.
func (t *BatchTransmitter) FailAll(ctx context.Context, entries []*models.SyncQueueEntry, cause error) *ApplyResult {
	result := &ApplyResult{}

	for _, entry := range entries {
		result.Failed++
		message := cause.Error()
		if err := t.queue.RecordFailure(ctx, entry, message); err != nil {
			message = fmt.Sprintf("%s; retry accounting failed: %v", message, err)
		}
		result.Errors = append(result.Errors, t.newError(entry, message))
	}

	return result
}

// Apply walks the per-item verdicts and applies each one. Items already
// applied stay applied even if a later item fails; a verdict that references
// no local entry is ignored. Every entry the response gave no verdict for is
// failed afterwards, so a desynchronized response cannot strand an in-flight
// entry with no path back to retry or dead-letter.
func (t *BatchTransmitter) Apply(ctx context.Context, entries []*models.SyncQueueEntry, resp *models.SyncBatchResponse) *ApplyResult {
	byID := make(map[uuid.UUID]*models.SyncQueueEntry, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
	}

	result := &ApplyResult{}
	settled := make(map[uuid.UUID]bool, len(entries))
	for _, item := range resp.ProcessedItems {
		clientID, err := uuid.Parse(item.ClientID)
		if err != nil {
			continue
		}
		entry, ok := byID[clientID]
		if !ok {
			// The authority answered for an entry we never sent; a
			// desynchronized response must not corrupt local state.
			continue
		}
		settled[entry.ID] = true

		switch item.Status {
		case models.ItemStatusSuccess:
			t.applySuccess(ctx, entry, item, result)
		case models.ItemStatusConflict:
			t.applyConflict(ctx, entry, item, result)
		default:
			message := item.Error
			if message == "" {
				message = fmt.Sprintf("authority rejected %s for task %s", entry.Operation, entry.TaskID)
			}
			t.applyFailure(ctx, entry, message, result)
		}
	}

	for _, entry := range entries {
		if settled[entry.ID] {
			continue
		}
		message := fmt.Sprintf("authority returned no verdict for %s on task %s", entry.Operation, entry.TaskID)
		t.applyFailure(ctx, entry, message, result)
	}

	return result
}

func (t *BatchTransmitter) applySuccess(ctx context.Context, entry *models.SyncQueueEntry, item models.SyncItemResult, result *ApplyResult) {
	if err := t.queue.MarkSynced(ctx, entry.ID); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, t.newError(entry, err.Error()))
		return
	}

	if err := t.markTaskSynced(ctx, entry.TaskID, item.ServerID); err != nil {
		result.Errors = append(result.Errors, t.newError(entry, err.Error()))
	}

	result.Synced++
}

func (t *BatchTransmitter) applyConflict(ctx context.Context, entry *models.SyncQueueEntry, item models.SyncItemResult, result *ApplyResult) {
	if item.ResolvedData == nil {
		t.applyFailure(ctx, entry, "conflict verdict without remote task data", result)
		return
	}

	var local models.Task
	if err := json.Unmarshal(entry.Data, &local); err != nil {
		t.applyFailure(ctx, entry, fmt.Sprintf("corrupt local snapshot: %v", err), result)
		return
	}

	resolution := ResolveConflict(&local, item.ResolvedData)

	winner := *resolution.ResolvedTask
	winner.ID = entry.TaskID
	winner.SyncStatus = models.SyncStatusSynced
	now := time.Now().UTC()
	winner.LastSyncedAt = &now
	if serverID, err := uuid.Parse(item.ServerID); err == nil {
		winner.ServerID = &serverID
	}

	if err := t.persistTask(ctx, &winner); err != nil {
		t.applyFailure(ctx, entry, fmt.Sprintf("failed to persist resolved task: %v", err), result)
		return
	}

	// A resolved conflict is a terminal, successful outcome; it never
	// retries.
	if err := t.queue.MarkSynced(ctx, entry.ID); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, t.newError(entry, err.Error()))
		return
	}

	result.Synced++
	result.Conflicts++
}

func (t *BatchTransmitter) applyFailure(ctx context.Context, entry *models.SyncQueueEntry, message string, result *ApplyResult) {
	result.Failed++
	if err := t.queue.RecordFailure(ctx, entry, message); err != nil {
		message = fmt.Sprintf("%s; retry accounting failed: %v", message, err)
	}
	result.Errors = append(result.Errors, t.newError(entry, message))

	// The queue entry keeps retrying (or dead-letters); the task itself
	// surfaces the failure to readers.
	task, err := t.taskRepo.GetByID(ctx, entry.TaskID)
	if err != nil {
		return
	}
	task.SyncStatus = models.SyncStatusError
	_ = t.taskRepo.Update(ctx, task)
}

func (t *BatchTransmitter) markTaskSynced(ctx context.Context, taskID uuid.UUID, serverID string) error {
	task, err := t.taskRepo.GetByID(ctx, taskID)
	if errors.Is(err, repositories.ErrNotFound) {
		// The task vanished after the entry was enqueued; the queue entry is
		// settled either way.
		return nil
	}
	if err != nil {
		return err
	}

	task.SyncStatus = models.SyncStatusSynced
	now := time.Now().UTC()
	task.LastSyncedAt = &now
	if id, err := uuid.Parse(serverID); err == nil {
		task.ServerID = &id
	}

	return t.taskRepo.Update(ctx, task)
}

func (t *BatchTransmitter) persistTask(ctx context.Context, task *models.Task) error {
	err := t.taskRepo.Update(ctx, task)
	if errors.Is(err, repositories.ErrNotFound) {
		return t.taskRepo.Insert(ctx, task)
	}
	return err
}

func (t *BatchTransmitter) newError(entry *models.SyncQueueEntry, message string) SyncError {
	return SyncError{
		TaskID:    entry.TaskID,
		Operation: entry.Operation,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
