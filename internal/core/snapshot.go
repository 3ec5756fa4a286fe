// Package core defines the run data model shared by the dispatch and wait stages.
package core

import (
	"slices"
)

// Run status values reported by the Actions API.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Run conclusion values for completed runs.
const (
	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionCancelled = "cancelled"
)

// Snapshot is a point-in-time listing of run identifiers.
// Identifiers are kept sorted ascending and deduplicated so that
// set difference between two snapshots is stable.
type Snapshot []int64

// NewSnapshot builds a Snapshot from a list of run IDs in any order.
func NewSnapshot(ids []int64) Snapshot {
	s := slices.Clone(ids)
	slices.Sort(s)
	return slices.Compact(s)
}

// Contains reports whether the snapshot includes the given run ID.
func (s Snapshot) Contains(id int64) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

// Equal reports whether two snapshots hold the same run IDs.
func (s Snapshot) Equal(other Snapshot) bool {
	return slices.Equal(s, other)
}

// Diff returns the run IDs present in s but not in old, sorted ascending.
// Diffing a snapshot against itself yields an empty result.
func (s Snapshot) Diff(old Snapshot) Snapshot {
	var out Snapshot
	for _, id := range s {
		if !old.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
