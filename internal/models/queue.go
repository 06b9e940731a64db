package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncOperation string

const (
	OperationCreate SyncOperation = "create"
	OperationUpdate SyncOperation = "update"
	OperationDelete SyncOperation = "delete"
)

type QueueStatus string

// An entry is created pending, claimed in_progress for the span of one
// transmission, and ends up synced or error. Error entries have failed at
// least once but are still below the retry ceiling; the next cycle drains
// them alongside pending ones.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusInProgress QueueStatus = "in_progress"
	QueueStatusSynced     QueueStatus = "synced"
	QueueStatusError      QueueStatus = "error"
)

// SyncQueueEntry is one pending local mutation awaiting transmission.
// Data holds a JSON snapshot of the task taken at enqueue time; the entry
// references the task by id only and never owns it.
type SyncQueueEntry struct {
	ID           uuid.UUID     `json:"id"`
	TaskID       uuid.UUID     `json:"task_id"`
	Operation    SyncOperation `json:"operation"`
	Data         []byte        `json:"data"`
	CreatedAt    time.Time     `json:"created_at"`
	RetryCount   int           `json:"retry_count"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	Status       QueueStatus   `json:"status"`
}

// DeadLetterEntry is a queue entry that exhausted its retries. Terminal:
// it never re-enters the active queue.
type DeadLetterEntry struct {
	ID           uuid.UUID     `json:"id"`
	TaskID       uuid.UUID     `json:"task_id"`
	Operation    SyncOperation `json:"operation"`
	Data         []byte        `json:"data"`
	RetryCount   int           `json:"retry_count"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	FailedAt     time.Time     `json:"failed_at"`
}

// ConflictResolution is the ephemeral outcome of resolving one conflicting
// item. The resolved task is written back to the task store; the resolution
// itself is never persisted.
type ConflictResolution struct {
	Strategy     string `json:"strategy"`
	ResolvedTask *Task  `json:"resolved_task"`
}

const StrategyLastWriteWins = "last-write-wins"
