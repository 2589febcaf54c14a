package v1

import (
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/service"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

// SyncStatusResponse is the summary shown next to a collection
type SyncStatusResponse struct {
	Status    string `json:"status"`
	Color     string `json:"color"`
	Timestamp string `json:"timestamp"`
}

// CollectionResponse is one collection with its summary
type CollectionResponse struct {
	ID         string              `json:"id"`
	Path       string              `json:"path"`
	SyncStatus *SyncStatusResponse `json:"sync_status"`
	NextCheck  string              `json:"next_check,omitempty"`
}

// ListMetadata carries paging information
type ListMetadata struct {
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListCollectionsResponse is the body of GET /v1/collections
type ListCollectionsResponse struct {
	Collections []CollectionResponse `json:"collections"`
	Metadata    ListMetadata         `json:"metadata"`
}

// RecordResponse is a full status record
type RecordResponse struct {
	CollectionID   string              `json:"collection_id"`
	Timestamp      string              `json:"timestamp"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	RawStatus      string              `json:"raw_status"`
	RawAnnexStatus string              `json:"raw_annex_status"`
	SyncStatus     *SyncStatusResponse `json:"sync_status"`
}

// QueueEntryResponse is one scheduled check
type QueueEntryResponse struct {
	CollectionID string `json:"collection_id"`
	Next         string `json:"next"`
}

// QueueResponse is the body of GET /v1/queue
type QueueResponse struct {
	GeneratedAt string               `json:"generated_at"`
	Entries     []QueueEntryResponse `json:"entries"`
}

// LockHolderResponse is one holder of the global refresh lock
type LockHolderResponse struct {
	Holder string `json:"holder"`
	Since  string `json:"since"`
}

// LockResponse is the state of the global refresh lock
type LockResponse struct {
	Locked  bool                 `json:"locked"`
	Holders []LockHolderResponse `json:"holders"`
}

// RefreshResponse acknowledges a refresh request
type RefreshResponse struct {
	CollectionID string `json:"collection_id"`
	Message      string `json:"message"`
}

func newSyncStatusResponse(s *status.SyncStatus) *SyncStatusResponse {
	if s == nil {
		return nil
	}
	return &SyncStatusResponse{
		Status:    string(s.State),
		Color:     string(s.Color),
		Timestamp: status.FormatTimestamp(s.Timestamp),
	}
}

func newCollectionResponse(c *service.CollectionStatus) CollectionResponse {
	resp := CollectionResponse{
		ID:         c.ID,
		Path:       c.Path,
		SyncStatus: newSyncStatusResponse(c.SyncStatus),
	}
	if !c.NextCheck.IsZero() {
		resp.NextCheck = status.FormatTimestamp(c.NextCheck)
	}
	return resp
}

func newRecordResponse(id string, r *status.Record) RecordResponse {
	return RecordResponse{
		CollectionID:   id,
		Timestamp:      status.FormatTimestamp(r.Timestamp),
		ElapsedSeconds: r.Elapsed.Seconds(),
		RawStatus:      r.RawStatus,
		RawAnnexStatus: r.RawAnnexStatus,
		SyncStatus:     newSyncStatusResponse(r.SyncStatus),
	}
}

func newQueueResponse(q *queue.Queue) QueueResponse {
	resp := QueueResponse{
		GeneratedAt: status.FormatTimestamp(q.GeneratedAt),
		Entries:     make([]QueueEntryResponse, 0, len(q.Entries)),
	}
	for _, e := range q.Entries {
		resp.Entries = append(resp.Entries, QueueEntryResponse{
			CollectionID: e.CollectionID,
			Next:         status.FormatTimestamp(e.Next),
		})
	}
	return resp
}

func newLockResponse(entries []lock.Entry) LockResponse {
	resp := LockResponse{
		Locked:  len(entries) > 0,
		Holders: make([]LockHolderResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Holders = append(resp.Holders, LockHolderResponse{
			Holder: e.Holder,
			Since:  status.FormatTimestamp(e.Since),
		})
	}
	return resp
}
