package handlers

import (
	"errors"
	"net/http"

	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/services"
)

type SyncHandler struct {
	sync *services.SyncService
}

func NewSyncHandler(sync *services.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Trigger runs one sync cycle. Cycles are single-flight: a trigger while one
// is running gets a 409 instead of a second concurrent drain.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sync.Sync(r.Context())
	if errors.Is(err, services.ErrSyncInProgress) {
		respondError(w, http.StatusConflict, "sync already in progress")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// DeadLetters lists entries that exhausted their retries. They never re-enter
// the queue; this endpoint exists so operators can inspect what was dropped.
func (h *SyncHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	entries, err := h.sync.DeadLetters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read dead letters")
		return
	}
	if entries == nil {
		entries = []*models.DeadLetterEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
