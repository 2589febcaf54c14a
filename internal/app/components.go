package app

import (
	"github.com/ddr-tools/gitstatusd/internal/kv"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/service"
	"github.com/ddr-tools/gitstatusd/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator runs the scheduled refreshes
	Coordinator coordinator.Coordinator

	// StatusService answers status, queue and lock requests
	StatusService service.StatusService

	// GlobalLock is the lockfile that pauses refreshes
	GlobalLock lock.Coordinator

	// Store backs the execution lock and the status cache
	Store kv.Store
}

// Close releases the key/value store connection
func (c *AppComponents) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
