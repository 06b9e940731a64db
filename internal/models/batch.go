package models

import (
	"encoding/json"
	"time"
)

// Item result statuses returned by the authority per queue entry.
const (
	ItemStatusSuccess  = "success"
	ItemStatusConflict = "conflict"
	ItemStatusError    = "error"
)

// SyncBatchRequest is the wire format for a batch push. Items is kept as raw
// JSON so the checksum is computed over the exact bytes that go on the wire;
// the authority re-hashes the same bytes before decoding them.
type SyncBatchRequest struct {
	Items           json.RawMessage `json:"items"`
	ClientTimestamp time.Time       `json:"client_timestamp"`
	Checksum        string          `json:"checksum"`
}

// SyncItemResult is the authority's verdict on a single queue entry.
// ClientID echoes the queue entry id the verdict applies to.
type SyncItemResult struct {
	ClientID     string `json:"client_id"`
	ServerID     string `json:"server_id,omitempty"`
	Status       string `json:"status"`
	ResolvedData *Task  `json:"resolved_data,omitempty"`
	Error        string `json:"error,omitempty"`
}

type SyncBatchResponse struct {
	ProcessedItems []SyncItemResult `json:"processed_items"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
