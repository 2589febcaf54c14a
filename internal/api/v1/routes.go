// Package v1 provides the collection status API endpoints.
package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ddr-tools/gitstatusd/internal/api/common"
	"github.com/ddr-tools/gitstatusd/internal/service"
)

// Routes handles HTTP requests for the v1 endpoints.
type Routes struct {
	service service.StatusService
}

// NewRoutes creates a new Routes instance with the given service.
func NewRoutes(svc service.StatusService) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates and configures the HTTP router for the v1 endpoints.
func Router(svc service.StatusService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/collections", routes.listCollections)
	r.Route("/collections/{collectionID}", func(r chi.Router) {
		r.Get("/", routes.getCollection)
		r.Get("/status", routes.getSyncStatus)
		r.Get("/record", routes.getRecord)
		r.Post("/refresh", routes.requestRefresh)
	})

	r.Get("/queue", routes.getQueue)
	r.Post("/queue/regenerate", routes.regenerateQueue)

	r.Get("/lock", routes.getLock)
	r.Post("/lock/{holder}", routes.lock)
	r.Delete("/lock/{holder}", routes.unlock)

	return r
}

// listCollections handles GET /v1/collections?repo_org=&state=&cursor=&limit=
func (routes *Routes) listCollections(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := []service.Option[service.ListCollectionsOptions]{}
	if repoOrg := query.Get("repo_org"); repoOrg != "" {
		opts = append(opts, service.WithRepoOrg(repoOrg))
	}
	if state := query.Get("state"); state != "" {
		opts = append(opts, service.WithState(state))
	}
	if cursor := query.Get("cursor"); cursor != "" {
		opts = append(opts, service.WithCursor(cursor))
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			common.WriteErrorResponse(w, "Invalid limit parameter: must be an integer", http.StatusBadRequest)
			return
		}
		opts = append(opts, service.WithLimit(limit))
	}

	// Validate options up front so bad input is a 400, not a service failure
	checked := service.ListCollectionsOptions{}
	for _, opt := range opts {
		if err := opt(&checked); err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	page, err := routes.service.ListCollections(r.Context(), opts...)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}

	resp := ListCollectionsResponse{
		Collections: make([]CollectionResponse, 0, len(page.Collections)),
		Metadata: ListMetadata{
			Count:      len(page.Collections),
			NextCursor: page.NextCursor,
		},
	}
	for _, c := range page.Collections {
		resp.Collections = append(resp.Collections, newCollectionResponse(c))
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// getCollection handles GET /v1/collections/{collectionID}
func (routes *Routes) getCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	c, err := routes.service.GetCollection(r.Context(), id)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newCollectionResponse(c), http.StatusOK)
}

// getSyncStatus handles GET /v1/collections/{collectionID}/status
func (routes *Routes) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	summary, err := routes.service.SyncStatus(r.Context(), id)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	if summary == nil {
		common.WriteServiceError(w, fmt.Errorf("%w: %s", service.ErrStatusNotFound, id))
		return
	}
	common.WriteJSONResponse(w, newSyncStatusResponse(summary), http.StatusOK)
}

// getRecord handles GET /v1/collections/{collectionID}/record
func (routes *Routes) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	record, err := routes.service.GetRecord(r.Context(), id)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newRecordResponse(id, record), http.StatusOK)
}

// requestRefresh handles POST /v1/collections/{collectionID}/refresh
func (routes *Routes) requestRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	if err := routes.service.RequestRefresh(r.Context(), id); err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, RefreshResponse{
		CollectionID: id,
		Message:      "collection will be checked on the next refresh run",
	}, http.StatusAccepted)
}

// getQueue handles GET /v1/queue
func (routes *Routes) getQueue(w http.ResponseWriter, r *http.Request) {
	q, err := routes.service.GetQueue(r.Context())
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newQueueResponse(q), http.StatusOK)
}

// regenerateQueue handles POST /v1/queue/regenerate
func (routes *Routes) regenerateQueue(w http.ResponseWriter, r *http.Request) {
	q, err := routes.service.RegenerateQueue(r.Context())
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newQueueResponse(q), http.StatusOK)
}

// getLock handles GET /v1/lock
func (routes *Routes) getLock(w http.ResponseWriter, r *http.Request) {
	entries, err := routes.service.Locks(r.Context())
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newLockResponse(entries), http.StatusOK)
}

// lock handles POST /v1/lock/{holder}
func (routes *Routes) lock(w http.ResponseWriter, r *http.Request) {
	holder, err := common.URLParam(r, "holder")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := routes.service.Lock(r.Context(), holder)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newLockResponse(entries), http.StatusOK)
}

// unlock handles DELETE /v1/lock/{holder}
func (routes *Routes) unlock(w http.ResponseWriter, r *http.Request) {
	holder, err := common.URLParam(r, "holder")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := routes.service.Unlock(r.Context(), holder)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, newLockResponse(entries), http.StatusOK)
}

func collectionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := common.CollectionID(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return id, true
}
