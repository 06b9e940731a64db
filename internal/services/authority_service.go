package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/repositories"
	"github.com/prasadrv/tasksync/internal/utils"
)

var (
	ErrChecksumMismatch = errors.New("Checksum mismatch")
	ErrMalformedBatch   = errors.New("malformed batch payload")
)

// AuthorityService is the server side of the batch endpoint. It keeps its
// own task table keyed by client task id and answers each incoming item with
// success, conflict or error.
//
// Conflict policy: the stored version wins a "conflict" verdict only when its
// updated_at is strictly newer than the incoming snapshot's; otherwise the
// snapshot is applied and the item succeeds. This mirrors the replica's
// last-write-wins rule, so both sides converge on the same version.
type AuthorityService struct {
	remoteTasks repositories.RemoteTaskRepository
}

func NewAuthorityService(remoteTasks repositories.RemoteTaskRepository) *AuthorityService {
	return &AuthorityService{remoteTasks: remoteTasks}
}

// ProcessBatch verifies the batch digest over the raw items bytes exactly as
// transmitted, then processes the items in order. Item-level failures do not
// abort the batch.
func (s *AuthorityService) ProcessBatch(ctx context.Context, req models.SyncBatchRequest) (*models.SyncBatchResponse, error) {
	if utils.Checksum(req.Items) != req.Checksum {
		return nil, ErrChecksumMismatch
	}

	var items []models.SyncQueueEntry
	if err := json.Unmarshal(req.Items, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}

	resp := &models.SyncBatchResponse{
		ProcessedItems: make([]models.SyncItemResult, 0, len(items)),
	}

	for i := range items {
		resp.ProcessedItems = append(resp.ProcessedItems, s.processItem(ctx, &items[i]))
	}

	return resp, nil
}

func (s *AuthorityService) processItem(ctx context.Context, item *models.SyncQueueEntry) models.SyncItemResult {
	var snapshot models.Task
	if err := json.Unmarshal(item.Data, &snapshot); err != nil {
		return models.SyncItemResult{
			ClientID: item.ID.String(),
			Status:   models.ItemStatusError,
			Error:    fmt.Sprintf("unreadable task snapshot: %v", err),
		}
	}

	existing, err := s.remoteTasks.GetByClientID(ctx, snapshot.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return models.SyncItemResult{
			ClientID: item.ID.String(),
			Status:   models.ItemStatusError,
			Error:    fmt.Sprintf("failed to load stored task: %v", err),
		}
	}

	if existing == nil {
		// First time this task is seen; assign its server identity.
		serverID := uuid.New()
		snapshot.ServerID = &serverID
		if err := s.remoteTasks.Upsert(ctx, &snapshot); err != nil {
			return models.SyncItemResult{
				ClientID: item.ID.String(),
				Status:   models.ItemStatusError,
				Error:    fmt.Sprintf("failed to store task: %v", err),
			}
		}
		return models.SyncItemResult{
			ClientID: item.ID.String(),
			ServerID: serverID.String(),
			Status:   models.ItemStatusSuccess,
		}
	}

	serverID := ""
	if existing.ServerID != nil {
		serverID = existing.ServerID.String()
	}

	if existing.UpdatedAt.After(snapshot.UpdatedAt) {
		return models.SyncItemResult{
			ClientID:     item.ID.String(),
			ServerID:     serverID,
			Status:       models.ItemStatusConflict,
			ResolvedData: existing,
		}
	}

	snapshot.ServerID = existing.ServerID
	if err := s.remoteTasks.Upsert(ctx, &snapshot); err != nil {
		return models.SyncItemResult{
			ClientID: item.ID.String(),
			Status:   models.ItemStatusError,
			Error:    fmt.Sprintf("failed to store task: %v", err),
		}
	}

	return models.SyncItemResult{
		ClientID: item.ID.String(),
		ServerID: serverID,
		Status:   models.ItemStatusSuccess,
	}
}
