// Package coordinator drives the background refresh of collection status.
//
// A cron beat fires UpdateStore on a fixed schedule. Each run refreshes at
// most one collection, the earliest due entry of the refresh queue, and then
// reschedules it one interval plus a random margin into the future. Spreading
// the checks this way keeps the load on the shared volume flat.
//
// # Run Sequence
//
// Each UpdateStore run walks these steps and stops at the first one that
// does not let it continue:
//
//  1. Take the execution lock in the shared key-value store. Another run
//     holding it means this one does nothing.
//  2. Require the base path to be writable.
//  3. Require the global refresh lock file to be empty.
//  4. Load the refresh queue. A missing queue means the operator has not run
//     "gitstatusd regenerate" yet.
//  5. Pick the earliest due collection, skipping edit-locked collections when
//     refresh.respectCollectionLocks is set.
//  6. Ask the status provider for the collection's working tree status and
//     classify it.
//  7. Write the status record, refresh the cached summary, reschedule the
//     collection, and save the queue.
//
// The execution lock is released when the run ends, whatever the outcome. A
// run that dies mid-way leaves the lock to expire after its TTL.
//
// Every run returns the human-readable messages it produced; the same text
// is logged and the run outcome is recorded as a metric.
//
// # Usage
//
//	c := coordinator.New(cfg, coordinator.Dependencies{
//	    Store:      store,
//	    GlobalLock: globalLock,
//	    Provider:   vcs.NewGitStatusProvider(),
//	    Statuses:   status.NewFileStatusPersistence(cfg.BasePath),
//	    EditLocks:  collection.NewFileLockQuery(cfg.BasePath),
//	})
//
//	go c.Start(ctx)
//	defer c.Stop()
package coordinator
