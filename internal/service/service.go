// Package service provides the business logic behind the status API and CLI
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist under the base path
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrInvalidCollectionID is returned for identifiers that are not of the form repo-org-number
	ErrInvalidCollectionID = errors.New("invalid collection id")
	// ErrStatusNotFound is returned when a collection has never been checked
	ErrStatusNotFound = errors.New("no status recorded")
	// ErrRefreshBusy is returned when a refresh run holds the execution lock
	ErrRefreshBusy = errors.New("a refresh run is in progress")
	// ErrNotReady is returned by CheckReadiness when the base path cannot be used
	ErrNotReady = errors.New("service not ready")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go StatusService

// StatusService defines the interface for collection status operations
type StatusService interface {
	// CheckReadiness checks if the base path is mounted and writable
	CheckReadiness(ctx context.Context) error

	// ListCollections returns the collections of the configured repo-org pairs with their summaries
	ListCollections(ctx context.Context, opts ...Option[ListCollectionsOptions]) (*CollectionPage, error)

	// GetCollection returns one collection with its summary and next check time
	GetCollection(ctx context.Context, collectionID string) (*CollectionStatus, error)

	// SyncStatus returns the cached summary of a collection, reading the status file on a miss.
	// Returns nil when the collection has never been checked.
	SyncStatus(ctx context.Context, collectionID string) (*status.SyncStatus, error)

	// GetRecord returns the full status record of a collection
	GetRecord(ctx context.Context, collectionID string) (*status.Record, error)

	// GetQueue returns the refresh queue
	GetQueue(ctx context.Context) (*queue.Queue, error)

	// RegenerateQueue rebuilds the refresh queue from the collections on disk
	RegenerateQueue(ctx context.Context) (*queue.Queue, error)

	// RequestRefresh makes a collection due so the next refresh run checks it
	RequestRefresh(ctx context.Context, collectionID string) error

	// Locks returns the holders of the global refresh lock
	Locks(ctx context.Context) ([]lock.Entry, error)

	// Lock adds a holder to the global refresh lock
	Lock(ctx context.Context, holder string) ([]lock.Entry, error)

	// Unlock removes a holder from the global refresh lock
	Unlock(ctx context.Context, holder string) ([]lock.Entry, error)
}

// CollectionStatus is one collection as reported by the service
type CollectionStatus struct {
	ID         string
	Path       string
	SyncStatus *status.SyncStatus
	// NextCheck is zero when the collection is not in the refresh queue
	NextCheck time.Time
}

// CollectionPage is one page of ListCollections
type CollectionPage struct {
	Collections []*CollectionStatus
	// NextCursor is empty on the last page
	NextCursor string
}

// Option is a function that sets an option for a service operation
type Option[T ListCollectionsOptions] func(*T) error

// ListCollectionsOptions is the options for the ListCollections operation
type ListCollectionsOptions struct {
	RepoOrg string
	State   status.SyncState
	Cursor  string
	Limit   int
}

// WithRepoOrg restricts ListCollections to one configured repo-org pair
func WithRepoOrg(repoOrg string) Option[ListCollectionsOptions] {
	return func(o *ListCollectionsOptions) error {
		if repoOrg == "" {
			return fmt.Errorf("invalid repo-org: %s", repoOrg)
		}
		o.RepoOrg = repoOrg
		return nil
	}
}

// WithState restricts ListCollections to collections in the given state
func WithState(state string) Option[ListCollectionsOptions] {
	return func(o *ListCollectionsOptions) error {
		s, err := status.ParseSyncState(state)
		if err != nil {
			return err
		}
		o.State = s
		return nil
	}
}

// WithCursor continues ListCollections after the collection encoded in cursor
func WithCursor(cursor string) Option[ListCollectionsOptions] {
	return func(o *ListCollectionsOptions) error {
		if cursor == "" {
			return fmt.Errorf("invalid cursor: %s", cursor)
		}
		o.Cursor = cursor
		return nil
	}
}

// WithLimit sets the page size of ListCollections
func WithLimit(limit int) Option[ListCollectionsOptions] {
	return func(o *ListCollectionsOptions) error {
		if limit <= 0 {
			return fmt.Errorf("invalid limit: %d", limit)
		}
		o.Limit = limit
		return nil
	}
}
