package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/repositories"
)

// ErrSyncInProgress is returned when a cycle is triggered while another one
// is still running.
var ErrSyncInProgress = errors.New("sync cycle already in progress")

type SyncPhase string

const (
	PhaseIdle                 SyncPhase = "idle"
	PhaseCheckingConnectivity SyncPhase = "checking_connectivity"
	PhaseDraining             SyncPhase = "draining"
	PhaseTransmitting         SyncPhase = "transmitting"
	PhaseApplyingResults      SyncPhase = "applying_results"
)

// connectivityChecker is the slice of the remote client the orchestrator
// needs for its probe.
type connectivityChecker interface {
	CheckHealth(ctx context.Context) bool
}

// SyncSummary is the structured outcome of one cycle. A cycle never returns
// an error for its own outcome: even a total failure yields a summary the
// caller can render.
type SyncSummary struct {
	Success   bool        `json:"success"`
	Synced    int         `json:"synced"`
	Failed    int         `json:"failed"`
	Conflicts int         `json:"conflicts"`
	Errors    []SyncError `json:"errors,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// SyncStatusResponse is the operational view of the sync machinery.
type SyncStatusResponse struct {
	Phase           SyncPhase                  `json:"phase"`
	QueueCounts     map[models.QueueStatus]int `json:"queue_counts"`
	DeadLetterCount int                        `json:"dead_letter_count"`
	LastSyncedAt    *time.Time                 `json:"last_synced_at,omitempty"`
	Online          bool                       `json:"online"`
}

// SyncService runs the sync cycle: connectivity check, queue drain, batch
// transmission, result application. At most one cycle runs at a time; the
// guard is an explicit mutex rather than an assumption about callers.
type SyncService struct {
	checker     connectivityChecker
	queue       *SyncQueueService
	transmitter *BatchTransmitter
	syncState   repositories.SyncStateRepository

	mu      sync.Mutex // held for the whole drain-transmit-apply span
	phaseMu sync.RWMutex
	phase   SyncPhase
}

func NewSyncService(
	checker connectivityChecker,
	queue *SyncQueueService,
	transmitter *BatchTransmitter,
	syncState repositories.SyncStateRepository,
) *SyncService {
	return &SyncService{
		checker:     checker,
		queue:       queue,
		transmitter: transmitter,
		syncState:   syncState,
		phase:       PhaseIdle,
	}
}

// Sync runs one complete cycle and returns its summary. The only error it
// can return is ErrSyncInProgress; everything that happens inside a cycle is
// reported through the summary.
func (s *SyncService) Sync(ctx context.Context) (*SyncSummary, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()
	defer s.setPhase(PhaseIdle)

	s.setPhase(PhaseCheckingConnectivity)
	online := s.checker.CheckHealth(ctx)
	// Best effort: the cached flag only feeds the status endpoint.
	_ = s.syncState.SetConnectivity(ctx, online)

	if !online {
		return &SyncSummary{
			Success: false,
			Message: "remote authority unreachable",
		}, nil
	}

	s.setPhase(PhaseDraining)
	entries, err := s.queue.DrainCandidates(ctx)
	if err != nil {
		return &SyncSummary{
			Success: false,
			Message: "failed to read sync queue: " + err.Error(),
		}, nil
	}

	if len(entries) == 0 {
		return &SyncSummary{
			Success: true,
			Message: "nothing to sync",
		}, nil
	}

	if err := s.queue.MarkInFlight(ctx, entries); err != nil {
		return &SyncSummary{
			Success: false,
			Message: "failed to claim queue entries: " + err.Error(),
		}, nil
	}

	s.setPhase(PhaseTransmitting)
	resp, err := s.transmitter.Send(ctx, entries)
	if err != nil {
		// No usable response: the whole batch failed, every entry goes
		// through retry accounting.
		result := s.transmitter.FailAll(ctx, entries, err)
		return s.summarize(result, "batch transmission failed"), nil
	}

	s.setPhase(PhaseApplyingResults)
	result := s.transmitter.Apply(ctx, entries, resp)

	// The authority answered and results were applied; record the sync time
	// even when individual items failed.
	_ = s.syncState.SetLastSyncTime(ctx, time.Now().UTC())

	return s.summarize(result, ""), nil
}

// Status reports queue counts, dead letter volume, last sync time, current
// connectivity and the phase of any in-flight cycle.
func (s *SyncService) Status(ctx context.Context) (*SyncStatusResponse, error) {
	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	deadLetters, err := s.queue.CountDeadLetters(ctx)
	if err != nil {
		return nil, err
	}

	status := &SyncStatusResponse{
		Phase:           s.currentPhase(),
		QueueCounts:     counts,
		DeadLetterCount: deadLetters,
	}

	lastSync, err := s.syncState.GetLastSyncTime(ctx)
	if err == nil {
		status.LastSyncedAt = &lastSync
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	online, err := s.syncState.GetConnectivity(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		// Nothing cached; probe and cache the answer.
		online = s.checker.CheckHealth(ctx)
		_ = s.syncState.SetConnectivity(ctx, online)
	} else if err != nil {
		return nil, err
	}
	status.Online = online

	return status, nil
}

// DeadLetters returns the entries that exhausted their retries, for manual
// inspection.
func (s *SyncService) DeadLetters(ctx context.Context) ([]*models.DeadLetterEntry, error) {
	return s.queue.ListDeadLetters(ctx)
}

func (s *SyncService) summarize(result *ApplyResult, message string) *SyncSummary {
	return &SyncSummary{
		Success:   result.Failed == 0,
		Synced:    result.Synced,
		Failed:    result.Failed,
		Conflicts: result.Conflicts,
		Errors:    result.Errors,
		Message:   message,
	}
}

func (s *SyncService) setPhase(phase SyncPhase) {
	s.phaseMu.Lock()
	s.phase = phase
	s.phaseMu.Unlock()
}

func (s *SyncService) currentPhase() SyncPhase {
	s.phaseMu.RLock()
	defer s.phaseMu.RUnlock()
	return s.phase
}
