// Package checkpoint snapshots and restores artifact-set state. The
// checkpoint history itself lives on the artifact set; this package only
// mediates access and enforces the dense-index and deep-copy rules.
package checkpoint

import (
	"time"

	"driverforge/internal/driver"
	"driverforge/internal/logging"
)

// Create snapshots the set's files plus validity under the next dense
// index and advances the current pointer. When result is non-nil its
// validity is captured instead of the set's current one. Prior checkpoints
// are never touched.
func Create(set *driver.ArtifactSet, message string, result *driver.Validity) driver.Checkpoint {
	validity := set.Validity
	if result != nil {
		validity = *result
	}

	cp := driver.Checkpoint{
		Index:     len(set.Checkpoints),
		Message:   message,
		Timestamp: time.Now(),
		Files:     set.Files, // Files is a value type of strings; assignment deep-copies
		Validity:  validity.Clone(),
	}

	set.Checkpoints = append(set.Checkpoints, cp)
	set.CurrentCheckpointIndex = cp.Index
	set.UpdatedAt = time.Now()

	logging.Checkpoint("Created checkpoint %d for %s: %s", cp.Index, set.Name, message)
	return cp
}

// Rollback restores files and validity in place from the checkpoint with
// the given index and moves the current pointer to it.
func Rollback(set *driver.ArtifactSet, index int) error {
	if index < 0 || index >= len(set.Checkpoints) {
		return driver.ErrCheckpointNotFound
	}

	cp := set.Checkpoints[index]
	set.Files = cp.Files
	set.Validity = cp.Validity.Clone()
	set.CurrentCheckpointIndex = index
	set.UpdatedAt = time.Now()

	logging.Checkpoint("Rolled back %s to checkpoint %d (%s)", set.Name, index, cp.Message)
	return nil
}

// RollbackToLastValid rolls back to the highest-indexed checkpoint marked
// valid. Returns false without touching the set when none exists.
func RollbackToLastValid(set *driver.ArtifactSet) bool {
	for i := len(set.Checkpoints) - 1; i >= 0; i-- {
		if set.Checkpoints[i].Validity.IsValid {
			// Index is in range, Rollback cannot fail here.
			_ = Rollback(set, i)
			return true
		}
	}
	return false
}

// All returns the checkpoint history in index order. Callers must treat
// the snapshots as read-only.
func All(set *driver.ArtifactSet) []driver.Checkpoint {
	return set.Checkpoints
}

// Latest returns the most recent checkpoint, or false when none exists.
func Latest(set *driver.ArtifactSet) (driver.Checkpoint, bool) {
	if len(set.Checkpoints) == 0 {
		return driver.Checkpoint{}, false
	}
	return set.Checkpoints[len(set.Checkpoints)-1], true
}

// Clear drops the full history and resets the pointer. Used on delete.
func Clear(set *driver.ArtifactSet) {
	set.Checkpoints = nil
	set.CurrentCheckpointIndex = -1
	set.UpdatedAt = time.Now()
}
