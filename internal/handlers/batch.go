package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prasadrv/tasksync/internal/models"
	"github.com/prasadrv/tasksync/internal/services"
)

// BatchHandler is the authority side of the sync protocol.
type BatchHandler struct {
	authority *services.AuthorityService
}

func NewBatchHandler(authority *services.AuthorityService) *BatchHandler {
	return &BatchHandler{authority: authority}
}

func (h *BatchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req models.SyncBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch payload")
		return
	}

	resp, err := h.authority.ProcessBatch(r.Context(), req)
	if errors.Is(err, services.ErrChecksumMismatch) {
		respondError(w, http.StatusBadRequest, "Checksum mismatch")
		return
	}
	if errors.Is(err, services.ErrMalformedBatch) {
		respondError(w, http.StatusBadRequest, "malformed batch payload")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to process batch")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
