package status

import (
	"fmt"
	"time"
)

// SyncState is the coarse classification of a collection's divergence from its remote
type SyncState string

const (
	// SyncStateSynced means the local branch matches its upstream and the tree is clean
	SyncStateSynced SyncState = "synced"

	// SyncStateAhead means the local branch has commits the upstream lacks
	SyncStateAhead SyncState = "ahead"

	// SyncStateBehind means the upstream has commits the local branch lacks
	SyncStateBehind SyncState = "behind"

	// SyncStateDiverged means both sides have commits the other lacks
	SyncStateDiverged SyncState = "diverged"

	// SyncStateConflicted means the working tree has unmerged paths
	SyncStateConflicted SyncState = "conflicted"

	// SyncStateLocked means the collection is locked for editing by another process
	SyncStateLocked SyncState = "locked"

	// SyncStateUnknown means none of the other states could be established
	SyncStateUnknown SyncState = "unknown"
)

// Color is the display tag paired with a SyncState
type Color string

const (
	// ColorSuccess marks a healthy collection
	ColorSuccess Color = "success"

	// ColorWarning marks a collection needing attention
	ColorWarning Color = "warning"

	// ColorDanger marks a collection needing manual repair
	ColorDanger Color = "danger"

	// ColorMuted marks a collection whose state is not known
	ColorMuted Color = "muted"
)

// ParseSyncState converts a persisted state name back into a SyncState
func ParseSyncState(s string) (SyncState, error) {
	switch SyncState(s) {
	case SyncStateSynced, SyncStateAhead, SyncStateBehind, SyncStateDiverged,
		SyncStateConflicted, SyncStateLocked, SyncStateUnknown:
		return SyncState(s), nil
	default:
		return "", fmt.Errorf("unknown sync state %q", s)
	}
}

// Color returns the display color for the state
func (s SyncState) Color() Color {
	switch s {
	case SyncStateSynced:
		return ColorSuccess
	case SyncStateAhead, SyncStateBehind, SyncStateLocked:
		return ColorWarning
	case SyncStateDiverged, SyncStateConflicted:
		return ColorDanger
	default:
		return ColorMuted
	}
}

// SyncStatus is the small summary shown next to each collection
type SyncStatus struct {
	// State is the classification of the collection
	State SyncState `json:"status"`

	// Color is the display tag for State
	Color Color `json:"color"`

	// Timestamp is the instant of the check that produced this summary
	Timestamp time.Time `json:"timestamp"`
}

// Record is one point-in-time status snapshot of a collection
type Record struct {
	// Timestamp is the instant the check was performed, at second precision in UTC
	Timestamp time.Time

	// Elapsed is how long the check took
	Elapsed time.Duration

	// RawStatus is the opaque working-tree status report
	RawStatus string

	// RawAnnexStatus is the opaque attachment status report, possibly empty
	RawAnnexStatus string

	// SyncStatus is nil when the collection has never been classified
	SyncStatus *SyncStatus
}

// NewRecord builds a Record whose summary carries the same timestamp as the record itself.
// The timestamp is normalized to the canonical precision so it survives a round trip.
func NewRecord(timestamp time.Time, elapsed time.Duration, rawStatus, rawAnnexStatus string, state SyncState) *Record {
	ts := Truncate(timestamp)
	return &Record{
		Timestamp:      ts,
		Elapsed:        elapsed,
		RawStatus:      rawStatus,
		RawAnnexStatus: rawAnnexStatus,
		SyncStatus: &SyncStatus{
			State:     state,
			Color:     state.Color(),
			Timestamp: ts,
		},
	}
}

// CacheKey returns the process-wide cache key holding the latest summary of a collection
func CacheKey(collectionID string) string {
	return fmt.Sprintf("gitstatus:collection:%s:sync-status", collectionID)
}
