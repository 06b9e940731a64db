package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// Task is a locally-owned task record. The ID is assigned by this replica;
// ServerID is assigned by the remote authority once the create has synced.
// UpdatedAt is the only signal used for conflict resolution, so it must be
// refreshed on every mutation, including soft delete.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	IsDeleted    bool       `json:"is_deleted"`
	SyncStatus   SyncStatus `json:"sync_status"`
	ServerID     *uuid.UUID `json:"server_id,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}
