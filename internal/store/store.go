// Package store persists the mutation queue and the local entity cache.
// Both collections are process-wide shared state; the optimistic layer and
// the sync engine are their only writers.
package store

import (
	"context"
	"time"

	"github.com/servly-app/servlygo/internal/models"
)

// MutationQueue is the durable, ordered table of pending mutation intents
type MutationQueue interface {
	// Enqueue persists an intent record and fills in its sequence ID
	Enqueue(ctx context.Context, intent *models.QueuedIntent) error

	// ListPending returns all intents ordered by creation time ascending
	ListPending(ctx context.Context) ([]models.QueuedIntent, error)

	// Remove deletes a single intent; removing an absent intent is not an error
	Remove(ctx context.Context, intentID uint) error

	// MarkRetry increments the retry counter and stores the last error.
	// Used exclusively by the sync engine.
	MarkRetry(ctx context.Context, intentID uint, attemptErr string) error

	// PendingCount returns the number of queued intents
	PendingCount(ctx context.Context) (int64, error)

	// Clear removes every intent (logout / account switch)
	Clear(ctx context.Context) error
}

// EntityCache stores the last-known-good copy of remote entities for
// offline reads
type EntityCache interface {
	// Put overwrites the snapshots for the given keys as one atomic write
	Put(ctx context.Context, entries []models.CachedEntity) error

	// Get returns the snapshot stored under key, or ErrCacheMiss
	Get(ctx context.Context, key string) (*models.CachedEntity, error)

	// GetAll returns every cached snapshot of a kind
	GetAll(ctx context.Context, kind models.EntityKind) ([]models.CachedEntity, error)

	// Remap moves a snapshot from a local identifier to its server
	// identifier in one transaction, storing the fresh server entity
	Remap(ctx context.Context, localID, serverID string, entry models.CachedEntity) error

	// Delete removes a single snapshot; absent keys are not an error
	Delete(ctx context.Context, key string) error

	// EvictOlderThan removes snapshots cached before now-maxAge and
	// returns how many were dropped
	EvictOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)

	// Clear removes everything (logout / account switch)
	Clear(ctx context.Context) error
}
