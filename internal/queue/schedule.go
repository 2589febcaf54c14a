package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/ddr-tools/gitstatusd/internal/collection"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

// StatusReader reads the status records kept for collections
type StatusReader interface {
	// LoadStatus returns the last record of a collection, or nil if it was never checked
	LoadStatus(ctx context.Context, collectionPath string) (*status.Record, error)
	// ListKnown returns the IDs that have a status file
	ListKnown(ctx context.Context) ([]string, error)
}

// Regenerate rebuilds the queue. Collections with a status file are seeded
// first, at the timestamp of their last record; the remaining collections on
// disk follow at the epoch so they are refreshed first. Status files whose
// collection is gone, or whose repo-org is not configured, are ignored.
func Regenerate(
	ctx context.Context,
	repoOrgs []string,
	dir collection.Directory,
	statuses StatusReader,
) (*Queue, error) {
	var listed []collection.Ref
	byID := map[string]collection.Ref{}
	for _, pair := range repoOrgs {
		repo, org, err := collection.SplitRepoOrg(pair)
		if err != nil {
			return nil, err
		}
		refs, err := dir.List(ctx, repo, org)
		if err != nil {
			return nil, fmt.Errorf("failed to list collections for %s: %w", pair, err)
		}
		for _, ref := range refs {
			if _, ok := byID[ref.ID]; ok {
				continue
			}
			byID[ref.ID] = ref
			listed = append(listed, ref)
		}
	}

	known, err := statuses.ListKnown(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list status files: %w", err)
	}

	q := &Queue{}
	seen := map[string]bool{}
	schedule := func(ref collection.Ref) error {
		seen[ref.ID] = true
		next, err := lastChecked(ctx, statuses, ref)
		if err != nil {
			return err
		}
		q.Entries = append(q.Entries, Entry{Next: next, CollectionID: ref.ID})
		return nil
	}

	for _, id := range known {
		ref, ok := byID[id]
		if !ok {
			slog.Debug("Status file without a configured collection, skipping", "collection", id)
			continue
		}
		if err := schedule(ref); err != nil {
			return nil, err
		}
	}
	for _, ref := range listed {
		if seen[ref.ID] {
			continue
		}
		if err := schedule(ref); err != nil {
			return nil, err
		}
	}

	sortEntries(q.Entries)
	q.GeneratedAt = status.Truncate(time.Now())
	return q, nil
}

// lastChecked returns the record timestamp of a collection, or the epoch when
// it has no readable record
func lastChecked(ctx context.Context, statuses StatusReader, ref collection.Ref) (time.Time, error) {
	record, err := statuses.LoadStatus(ctx, ref.Path)
	var parseErr *status.ParseError
	switch {
	case errors.As(err, &parseErr):
		slog.Warn("Unreadable status record, scheduling collection immediately",
			"collection", ref.ID,
			"error", err)
	case err != nil:
		return time.Time{}, fmt.Errorf("failed to read status of %s: %w", ref.ID, err)
	case record != nil:
		return record.Timestamp, nil
	}
	return status.Epoch, nil
}

// NextTime returns now plus interval plus a whole-second jitter drawn from [0, margin]
func NextTime(interval, margin time.Duration) time.Time {
	return time.Now().Add(interval + jitter(margin))
}

func jitter(margin time.Duration) time.Duration {
	seconds := int64(margin / time.Second)
	if seconds <= 0 {
		return 0
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for schedule jitter
	return time.Duration(rand.Int64N(seconds+1)) * time.Second
}

// MarkUpdated reschedules a collection, inserting it when absent. The jitter
// keeps collections regenerated together from re-converging on one instant.
func MarkUpdated(q *Queue, collectionID string, interval, margin time.Duration) *Queue {
	setNext(q, collectionID, NextTime(interval, margin))
	return q
}

// MarkDue schedules a collection at the epoch so the next tick picks it up
func MarkDue(q *Queue, collectionID string) *Queue {
	setNext(q, collectionID, status.Epoch)
	return q
}

func setNext(q *Queue, collectionID string, next time.Time) {
	for i := range q.Entries {
		if q.Entries[i].CollectionID == collectionID {
			q.Entries[i].Next = next
			return
		}
	}
	q.Entries = append(q.Entries, Entry{Next: next, CollectionID: collectionID})
}

// Selection is the outcome of PickNext
type Selection struct {
	// CollectionID is set when a collection is ready
	CollectionID string

	// NextAvailable is the earliest next eligible time across all entries; zero for an empty queue
	NextAvailable time.Time
}

// Ready reports whether a collection was selected
func (s Selection) Ready() bool {
	return s.CollectionID != ""
}

// Wait returns how long until the earliest entry becomes due
func (s Selection) Wait(now time.Time) time.Duration {
	if s.Ready() || s.NextAvailable.IsZero() {
		return 0
	}
	if d := s.NextAvailable.Sub(now); d > 0 {
		return d
	}
	return 0
}

// PickNext selects the earliest due collection. An entry is due once now is
// strictly after its next eligible time. Entries are scanned in ascending time
// order; equal times keep their queue order, so the first seen wins.
//
// With respectCollectionLocks set, due entries whose collection is edit-locked
// are skipped. A lock query error counts as locked for that entry.
func PickNext(
	ctx context.Context,
	q *Queue,
	locks collection.LockQuery,
	respectCollectionLocks bool,
) Selection {
	now := time.Now()
	ordered := make([]Entry, len(q.Entries))
	copy(ordered, q.Entries)
	sortEntries(ordered)

	var sel Selection
	for _, e := range ordered {
		if sel.NextAvailable.IsZero() || e.Next.Before(sel.NextAvailable) {
			sel.NextAvailable = e.Next
		}
		if sel.Ready() || !now.After(e.Next) {
			continue
		}
		if respectCollectionLocks && locks != nil {
			locked, err := locks.IsEditLocked(ctx, e.CollectionID)
			if err != nil {
				slog.Warn("Edit lock query failed, skipping collection",
					"collection", e.CollectionID,
					"error", err)
				continue
			}
			if locked {
				slog.Debug("Collection is locked for editing, skipping", "collection", e.CollectionID)
				continue
			}
		}
		sel.CollectionID = e.CollectionID
	}

	if sel.Ready() {
		sel.NextAvailable = time.Time{}
	}
	return sel
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Next.Before(entries[j].Next)
	})
}
