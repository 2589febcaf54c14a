// Package api provides the REST API server for collection status access.
package api

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status"`
}
