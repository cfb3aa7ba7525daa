package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/servly-app/servlygo/internal/config"
	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/store"
)

// Engine drains the mutation queue against the marketplace API. One drain
// runs at a time; redundant triggers are short-circuited by the syncing
// guard, which is checked and set under the same lock acquisition.
type Engine struct {
	mu        sync.Mutex
	isSyncing bool
	lastSync  time.Time

	queue     store.MutationQueue
	cache     store.EntityCache
	state     VisibleState
	remote    RemoteAPI
	publisher EventPublisher

	maxRetries int
	cacheTTL   time.Duration
}

// NewEngine creates a sync engine
func NewEngine(queue store.MutationQueue, cache store.EntityCache, state VisibleState, remote RemoteAPI, publisher EventPublisher, cfg *config.SyncConfig) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	cacheTTL := cfg.CacheTTL()
	if cacheTTL <= 0 {
		// A zero cutoff would make the post-drain sweep delete every
		// snapshot, provisional bookings included
		cacheTTL = 24 * time.Hour
	}
	return &Engine{
		queue:      queue,
		cache:      cache,
		state:      state,
		remote:     remote,
		publisher:  publisher,
		maxRetries: maxRetries,
		cacheTTL:   cacheTTL,
	}
}

// Drain processes every pending intent in creation order. If a drain is
// already in flight it returns immediately with Skipped set; callers racing
// on a reconnect event and a manual force-sync tap collapse into one pass.
// A started drain runs its queue snapshot to completion and is not
// cancelled by a mid-flight connectivity drop.
func (e *Engine) Drain(ctx context.Context) DrainResult {
	e.mu.Lock()
	if e.isSyncing {
		e.mu.Unlock()
		return DrainResult{Skipped: true}
	}
	e.isSyncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.isSyncing = false
		e.mu.Unlock()
	}()

	result := DrainResult{StartedAt: time.Now()}

	intents, err := e.queue.ListPending(ctx)
	if err != nil {
		log.Printf("⚠️ Drain aborted: could not read queue: %v", err)
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	if len(intents) > 0 {
		log.Printf("🔄 Draining %d pending intents...", len(intents))
	}

	// Local identifiers resolved during this drain; later intents for the
	// same entity depend on the server ID its create produced
	remapped := make(map[string]string)

	for i := range intents {
		intent := &intents[i]
		result.Processed++

		outcome := e.deliver(ctx, intent, remapped)

		if intent.Type == models.IntentCreateBooking && outcome.Booking == nil &&
			(outcome.Kind == OutcomeSynced || outcome.Kind == OutcomeAlreadySynced) {
			// Without the server entity there is nothing to remap the local
			// identifier to; keep the intent and let a later replay (made
			// safe by the offline identifier) recover the entity
			outcome = Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("create acknowledged without a server entity")}
		}

		switch outcome.Kind {
		case OutcomeSynced, OutcomeAlreadySynced:
			if err := e.applyConfirmed(ctx, intent, outcome, remapped); err != nil {
				// The remote accepted it; losing the local bookkeeping is
				// worse than a duplicate apply on the next pass
				log.Printf("⚠️ Intent %d confirmed but local apply failed: %v", intent.ID, err)
			}
			if err := e.queue.Remove(ctx, intent.ID); err != nil {
				log.Printf("⚠️ Failed to remove resolved intent %d: %v", intent.ID, err)
			}
			result.Synced++

		case OutcomeTransient:
			if intent.RetryCount+1 >= e.maxRetries {
				// Retry budget exhausted: terminal failure, reported, not
				// silently dropped
				if err := e.queue.Remove(ctx, intent.ID); err != nil {
					log.Printf("⚠️ Failed to remove exhausted intent %d: %v", intent.ID, err)
				}
				result.Failures = append(result.Failures, IntentFailure{
					IntentID: intent.ID,
					LocalID:  intent.LocalID,
					Type:     intent.Type,
					Error:    fmt.Sprintf("gave up after %d attempts: %v", e.maxRetries, outcome.Err),
					Terminal: true,
				})
				log.Printf("🔴 Intent %d (%s) exhausted its retry budget: %v", intent.ID, intent.Type, outcome.Err)
			} else {
				if err := e.queue.MarkRetry(ctx, intent.ID, outcome.Err.Error()); err != nil {
					log.Printf("⚠️ Failed to record retry for intent %d: %v", intent.ID, err)
				}
				result.Retried++
			}

		case OutcomePermanent:
			// Validation rejections are removed immediately regardless of
			// retry count
			if err := e.queue.Remove(ctx, intent.ID); err != nil {
				log.Printf("⚠️ Failed to remove rejected intent %d: %v", intent.ID, err)
			}
			result.Failures = append(result.Failures, IntentFailure{
				IntentID: intent.ID,
				LocalID:  intent.LocalID,
				Type:     intent.Type,
				Error:    outcome.Err.Error(),
				Terminal: true,
			})
			log.Printf("🔴 Intent %d (%s) rejected by remote: %v", intent.ID, intent.Type, outcome.Err)
		}
	}

	// Opportunistic staleness sweep; a drain is the natural moment since
	// we just talked to the source of truth
	if evicted, err := e.cache.EvictOlderThan(ctx, e.cacheTTL); err != nil {
		log.Printf("⚠️ Cache eviction sweep failed: %v", err)
	} else if evicted > 0 {
		log.Printf("🧹 Evicted %d stale cache entries", evicted)
	}

	pending, err := e.queue.PendingCount(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to recount queue: %v", err)
	}
	result.Pending = pending

	e.mu.Lock()
	e.lastSync = time.Now()
	e.mu.Unlock()

	result.Duration = time.Since(result.StartedAt)

	if result.Processed > 0 {
		log.Printf("✅ Drain completed in %v: %d synced, %d retried, %d failed, %d still pending",
			result.Duration, result.Synced, result.Retried, len(result.Failures), result.Pending)
	}

	e.publish(EventPendingCount, map[string]int64{"pending": pending})
	if result.Processed > 0 {
		e.publish(EventDrainResult, result)
	}

	return result
}

// deliver replays one intent against the remote API
func (e *Engine) deliver(ctx context.Context, intent *models.QueuedIntent, remapped map[string]string) Outcome {
	switch intent.Type {
	case models.IntentCreateBooking:
		var payload models.CreateBookingPayload
		if err := models.DecodeIntentPayload(intent, &payload); err != nil {
			return Outcome{Kind: OutcomePermanent, Err: err}
		}
		return e.remote.CreateBooking(ctx, payload, intent.LocalID)

	case models.IntentUpdateBooking:
		var payload models.UpdateBookingPayload
		if err := models.DecodeIntentPayload(intent, &payload); err != nil {
			return Outcome{Kind: OutcomePermanent, Err: err}
		}
		bookingID, ok := e.resolveBookingID(payload.BookingID, remapped)
		if !ok {
			// The create this update depends on has not resolved yet;
			// keep FIFO ordering and try again next drain
			return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("booking %s not yet confirmed by server", payload.BookingID)}
		}
		return e.remote.UpdateBooking(ctx, bookingID, payload)

	case models.IntentTransitionBooking:
		var payload models.TransitionBookingPayload
		if err := models.DecodeIntentPayload(intent, &payload); err != nil {
			return Outcome{Kind: OutcomePermanent, Err: err}
		}
		bookingID, ok := e.resolveBookingID(payload.BookingID, remapped)
		if !ok {
			return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("booking %s not yet confirmed by server", payload.BookingID)}
		}
		return e.remote.TransitionBooking(ctx, bookingID, payload.Action, payload.Reason)

	case models.IntentRescheduleBooking:
		var payload models.ReschedulePayload
		if err := models.DecodeIntentPayload(intent, &payload); err != nil {
			return Outcome{Kind: OutcomePermanent, Err: err}
		}
		bookingID, ok := e.resolveBookingID(payload.BookingID, remapped)
		if !ok {
			return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("booking %s not yet confirmed by server", payload.BookingID)}
		}
		return e.remote.RescheduleBooking(ctx, bookingID, payload)

	default:
		return Outcome{Kind: OutcomePermanent, Err: fmt.Errorf("unknown intent type: %s", intent.Type)}
	}
}

// resolveBookingID maps a possibly-local identifier to the server
// identifier, first through remaps made earlier in this drain, then
// through the visible state
func (e *Engine) resolveBookingID(id string, remapped map[string]string) (string, bool) {
	if !models.IsLocalID(id) {
		return id, true
	}
	if serverID, ok := remapped[id]; ok {
		return serverID, true
	}
	if serverID, ok := e.state.ResolveLocal(id); ok {
		return serverID, true
	}
	return "", false
}

// applyConfirmed folds a confirmed delivery back into the cache and the
// visible state, remapping local identifiers where the server minted one
func (e *Engine) applyConfirmed(ctx context.Context, intent *models.QueuedIntent, outcome Outcome, remapped map[string]string) error {
	switch intent.Type {
	case models.IntentCreateBooking:
		if outcome.Booking == nil {
			return fmt.Errorf("create confirmed without a server entity")
		}
		server := *outcome.Booking
		server.LocalID = intent.LocalID
		remapped[intent.LocalID] = server.ID

		entry, err := models.NewCachedEntity(models.EntityKindBooking, server.ID, server)
		if err != nil {
			return err
		}
		if err := e.cache.Remap(ctx, intent.LocalID, server.ID, entry); err != nil {
			return err
		}
		e.state.ReplaceLocal(intent.LocalID, server)
		return nil

	case models.IntentUpdateBooking, models.IntentRescheduleBooking:
		if outcome.Booking == nil {
			// Duplicate-delivery acknowledgements may come without a body;
			// the optimistic state already reflects the change
			return nil
		}
		server := *outcome.Booking
		entry, err := models.NewCachedEntity(models.EntityKindBooking, server.ID, server)
		if err != nil {
			return err
		}
		if err := e.cache.Put(ctx, []models.CachedEntity{entry}); err != nil {
			return err
		}
		e.state.ApplyServer(server)
		return nil

	case models.IntentTransitionBooking:
		var payload models.TransitionBookingPayload
		if err := models.DecodeIntentPayload(intent, &payload); err != nil {
			return err
		}
		target, ok := payload.Action.TargetStatus()
		if !ok {
			return fmt.Errorf("unknown action %s", payload.Action)
		}
		bookingID, _ := e.resolveBookingID(payload.BookingID, remapped)
		e.state.SetStatus(bookingID, target)
		return e.refreshCachedStatus(ctx, bookingID, target)

	default:
		return nil
	}
}

// refreshCachedStatus rewrites the cached snapshot of a booking after a
// confirmed transition (the transition endpoint returns no entity body)
func (e *Engine) refreshCachedStatus(ctx context.Context, bookingID string, status models.BookingStatus) error {
	entry, err := e.cache.Get(ctx, bookingID)
	if err != nil {
		if err == store.ErrCacheMiss {
			return nil
		}
		return err
	}
	var booking models.Booking
	if err := entry.DecodeSnapshot(&booking); err != nil {
		return err
	}
	booking.Status = status
	booking.UpdatedAt = time.Now().UTC()
	fresh, err := models.NewCachedEntity(models.EntityKindBooking, bookingID, booking)
	if err != nil {
		return err
	}
	return e.cache.Put(ctx, []models.CachedEntity{fresh})
}

// IsSyncing reports whether a drain is in flight
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isSyncing
}

// LastSync returns when the last drain finished
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Status assembles the process-wide sync signal
func (e *Engine) Status(ctx context.Context, online bool) Status {
	pending, err := e.queue.PendingCount(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to count pending intents: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Online:   online,
		Syncing:  e.isSyncing,
		Pending:  pending,
		LastSync: e.lastSync,
	}
}

func (e *Engine) publish(event string, payload interface{}) {
	if e.publisher != nil {
		e.publisher.Publish(event, payload)
	}
}
