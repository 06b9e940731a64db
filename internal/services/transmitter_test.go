package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transmitterFixture struct {
	transmitter *BatchTransmitter
	sender      *scriptedSender
	taskRepo    *fakeTaskRepo
	queueRepo   *fakeQueueRepo
	queue       *SyncQueueService
}

func newTransmitterFixture() *transmitterFixture {
	sender := &scriptedSender{}
	taskRepo := newFakeTaskRepo()
	queueRepo := newFakeQueueRepo()
	queue := NewSyncQueueService(queueRepo, 3)
	return &transmitterFixture{
		transmitter: NewBatchTransmitter(sender, queue, taskRepo),
		sender:      sender,
		taskRepo:    taskRepo,
		queueRepo:   queueRepo,
		queue:       queue,
	}
}

func (f *transmitterFixture) seedTask(t *testing.T, title string) (*models.Task, *models.SyncQueueEntry) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	task := &models.Task{
		ID:         uuid.New(),
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.SyncStatusPending,
	}
	require.NoError(t, f.taskRepo.Insert(ctx, task))

	entry, err := f.queue.Enqueue(ctx, task, models.OperationCreate)
	require.NoError(t, err)
	return task, entry
}

func TestBatchTransmitter_SendComputesChecksumOverItemsAsSent(t *testing.T) {
	f := newTransmitterFixture()
	f.sender.responses = []*models.SyncBatchResponse{{}}
	ctx := context.Background()

	_, entry := f.seedTask(t, "alpha")

	_, err := f.transmitter.Send(ctx, []*models.SyncQueueEntry{entry})
	require.NoError(t, err)

	require.Len(t, f.sender.requests, 1)
	req := f.sender.requests[0]

	assert.Equal(t, utils.Checksum(req.Items), req.Checksum)
	assert.False(t, req.ClientTimestamp.IsZero())

	// The items bytes decode back to the entries that were sent.
	var items []models.SyncQueueEntry
	require.NoError(t, json.Unmarshal(req.Items, &items))
	require.Len(t, items, 1)
	assert.Equal(t, entry.ID, items[0].ID)
}

// A rejected batch (checksum mismatch or no response at all) fails every
// entry: zero synced, every retry count incremented by exactly one.
func TestBatchTransmitter_FailAllIncrementsEveryRetryCount(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	var entries []*models.SyncQueueEntry
	for i := 0; i < 4; i++ {
		_, entry := f.seedTask(t, "task")
		entries = append(entries, entry)
	}

	result := f.transmitter.FailAll(ctx, entries, errors.New("authority rejected batch (400): Checksum mismatch"))

	assert.Equal(t, 0, result.Synced)
	assert.Equal(t, 4, result.Failed)
	require.Len(t, result.Errors, 4)

	for _, entry := range entries {
		stored, err := f.queueRepo.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Equal(t, models.QueueStatusError, stored.Status)
	}
}

// When failure bookkeeping itself breaks, the entry still counts once and
// carries a single error describing both problems.
func TestBatchTransmitter_FailAllKeepsCountsConsistentOnBookkeepingError(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	_, entry := f.seedTask(t, "alpha")
	f.queueRepo.updateFailureErr = errors.New("connection closed")

	result := f.transmitter.FailAll(ctx, []*models.SyncQueueEntry{entry}, errors.New("no response"))

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "no response")
	assert.Contains(t, result.Errors[0].Message, "connection closed")
}

func TestBatchTransmitter_ApplySuccessMarksEntryAndTask(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	task, entry := f.seedTask(t, "alpha")
	serverID := uuid.New()

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{entry}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{{
			ClientID: entry.ID.String(),
			ServerID: serverID.String(),
			Status:   models.ItemStatusSuccess,
		}},
	})

	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, result.Failed)

	stored, err := f.taskRepo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)
	require.NotNil(t, stored.ServerID)
	assert.Equal(t, serverID, *stored.ServerID)
	assert.NotNil(t, stored.LastSyncedAt)

	queueEntry, err := f.queueRepo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSynced, queueEntry.Status)
}

func TestBatchTransmitter_ApplyConflictRemoteNewerOverwritesLocal(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	task, entry := f.seedTask(t, "local title")

	remote := *task
	remote.Title = "remote title"
	remote.UpdatedAt = task.UpdatedAt.Add(time.Minute)

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{entry}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{{
			ClientID:     entry.ID.String(),
			ServerID:     uuid.New().String(),
			Status:       models.ItemStatusConflict,
			ResolvedData: &remote,
		}},
	})

	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 0, result.Failed)

	stored, err := f.taskRepo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote title", stored.Title)
	assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)

	// A resolved conflict is terminal: the entry does not retry.
	queueEntry, err := f.queueRepo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSynced, queueEntry.Status)
}

func TestBatchTransmitter_ApplyConflictLocalNewerKeepsLocal(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	task, entry := f.seedTask(t, "local title")

	remote := *task
	remote.Title = "remote title"
	remote.UpdatedAt = task.UpdatedAt.Add(-time.Minute)

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{entry}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{{
			ClientID:     entry.ID.String(),
			Status:       models.ItemStatusConflict,
			ResolvedData: &remote,
		}},
	})

	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Conflicts)

	stored, err := f.taskRepo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "local title", stored.Title)
	assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)
}

func TestBatchTransmitter_ApplyErrorRoutesRetryAccounting(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	task, entry := f.seedTask(t, "alpha")

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{entry}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{{
			ClientID: entry.ID.String(),
			Status:   models.ItemStatusError,
			Error:    "validation failed",
		}},
	})

	assert.Equal(t, 0, result.Synced)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "validation failed", result.Errors[0].Message)
	assert.Equal(t, task.ID, result.Errors[0].TaskID)

	stored, err := f.queueRepo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)

	storedTask, err := f.taskRepo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, storedTask.SyncStatus)
}

// An unrecognized status is handled like an explicit error, with a generic
// message when the authority supplies none.
func TestBatchTransmitter_ApplyUnknownStatusFailsEntry(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	_, entry := f.seedTask(t, "alpha")

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{entry}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{{
			ClientID: entry.ID.String(),
			Status:   "partial",
		}},
	})

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.NotEmpty(t, result.Errors[0].Message)
}

// Verdicts for entries that were never sent are ignored, and the local entry
// they displaced gets failed rather than stranded: there is no client id the
// response answered for, so the entry must fall back to retry accounting.
func TestBatchTransmitter_ApplyIgnoresUnknownClientIDAndFailsUnanswered(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	_, entry := f.seedTask(t, "alpha")

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{entry}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{
			{ClientID: uuid.New().String(), Status: models.ItemStatusSuccess},
			{ClientID: "not-a-uuid", Status: models.ItemStatusSuccess},
		},
	})

	assert.Equal(t, 0, result.Synced)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "no verdict")

	stored, err := f.queueRepo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusError, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

// A response that simply omits an entry must not strand it in flight: the
// entry goes through retry accounting and stays a drain candidate.
func TestBatchTransmitter_ApplyFailsEntriesWithoutVerdict(t *testing.T) {
	f := newTransmitterFixture()
	ctx := context.Background()

	_, answered := f.seedTask(t, "answered")
	_, omitted := f.seedTask(t, "omitted")

	result := f.transmitter.Apply(ctx, []*models.SyncQueueEntry{answered, omitted}, &models.SyncBatchResponse{
		ProcessedItems: []models.SyncItemResult{{
			ClientID: answered.ID.String(),
			ServerID: uuid.New().String(),
			Status:   models.ItemStatusSuccess,
		}},
	})

	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, omitted.TaskID, result.Errors[0].TaskID)

	stored, err := f.queueRepo.GetByID(ctx, omitted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusError, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}
