package services

import (
	"github.com/prasadrv/tasksync/internal/models"
)

// ResolveConflict picks a winner between a local and a remote version of the
// same task by last-write-wins on UpdatedAt. The local version wins only when
// it is strictly newer; a tie goes to the remote authority so every replica
// converges on the same version without a secondary tie-break key.
//
// The function is pure and knows nothing about the operation that produced
// either version; only the task payloads are compared.
func ResolveConflict(local, remote *models.Task) models.ConflictResolution {
	resolved := remote
	if local.UpdatedAt.After(remote.UpdatedAt) {
		resolved = local
	}

	return models.ConflictResolution{
		Strategy:     models.StrategyLastWriteWins,
		ResolvedTask: resolved,
	}
}
