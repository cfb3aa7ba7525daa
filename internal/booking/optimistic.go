package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/sync"
)

// CreateBooking applies a new booking optimistically under a local
// identifier, then reconciles: an online confirmation swaps in the server
// version immediately, a definitive rejection rolls the booking back, and
// anything else (offline, timeout, 5xx) leaves the provisional booking
// visible with an intent queued for the sync engine.
func (s *Store) CreateBooking(ctx context.Context, payload models.CreateBookingPayload) (models.Booking, error) {
	if payload.ServiceID == "" || payload.ProviderID == "" {
		return models.Booking{}, fmt.Errorf("%w: serviceId and providerId are required", ErrValidation)
	}
	if payload.ScheduledAt.IsZero() {
		return models.Booking{}, fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}

	now := time.Now().UTC()
	localID := models.NewLocalID()
	provisional := models.Booking{
		ID:          localID,
		LocalID:     localID,
		ServiceID:   payload.ServiceID,
		ProviderID:  payload.ProviderID,
		Status:      models.BookingStatusPending,
		ScheduledAt: payload.ScheduledAt,
		Price:       payload.Price,
		Notes:       payload.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Durable snapshot before the booking becomes visible, so a crash
	// between here and the enqueue can at worst lose the intent, never
	// show state that storage does not back.
	entry, err := models.NewCachedEntity(models.EntityKindBooking, localID, provisional)
	if err != nil {
		return models.Booking{}, err
	}
	if err := s.cache.Put(ctx, []models.CachedEntity{entry}); err != nil {
		return models.Booking{}, fmt.Errorf("failed to persist booking locally: %w", err)
	}

	s.mu.Lock()
	s.insertHead(provisional)
	s.mu.Unlock()

	if s.isOnline() {
		out := s.remote.CreateBooking(ctx, payload, localID)
		switch out.Kind {
		case sync.OutcomeSynced, sync.OutcomeAlreadySynced:
			if out.Booking != nil {
				server := *out.Booking
				server.LocalID = localID
				if entry, err := models.NewCachedEntity(models.EntityKindBooking, server.ID, server); err == nil {
					if err := s.cache.Remap(ctx, localID, server.ID, entry); err != nil {
						log.Printf("⚠️ Failed to remap booking %s -> %s in cache: %v", localID, server.ID, err)
					}
				}
				s.ReplaceLocal(localID, server)
				log.Printf("✅ Booking created: %s", server.ID)
				return server, nil
			}
			// Confirmed without a body; treat like a lost response and
			// let the drain replay settle it via the offline identifier
		case sync.OutcomePermanent:
			s.rollbackCreate(ctx, localID)
			log.Printf("🔴 Booking rejected by server: %v", out.Err)
			return models.Booking{}, out.Err
		}
		// Transient: fall through and queue
	}

	if err := s.enqueue(ctx, models.IntentCreateBooking, localID, payload); err != nil {
		s.rollbackCreate(ctx, localID)
		return models.Booking{}, err
	}

	log.Printf("📦 Booking %s queued for sync", localID)
	return provisional, nil
}

// UpdateBooking changes the editable fields of an existing booking
func (s *Store) UpdateBooking(ctx context.Context, id string, scheduledAt *time.Time, notes *string) (models.Booking, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Booking{}, ErrNotFound
	}
	snapshot := s.bookings[i]

	updated := snapshot
	if scheduledAt != nil {
		updated.ScheduledAt = *scheduledAt
	}
	if notes != nil {
		updated.Notes = *notes
	}
	updated.UpdatedAt = time.Now().UTC()
	s.bookings[i] = updated
	s.mu.Unlock()

	if err := s.persistOptimistic(ctx, updated); err != nil {
		s.restore(ctx, snapshot)
		return models.Booking{}, err
	}

	payload := models.UpdateBookingPayload{
		BookingID:   updated.ID,
		ScheduledAt: scheduledAt,
		Notes:       notes,
	}

	if s.isOnline() && updated.Synced() {
		out := s.remote.UpdateBooking(ctx, updated.ID, payload)
		switch out.Kind {
		case sync.OutcomeSynced, sync.OutcomeAlreadySynced:
			if out.Booking != nil {
				server := *out.Booking
				server.LocalID = snapshot.LocalID
				s.ApplyServer(server)
				if err := s.persistOptimistic(ctx, server); err != nil {
					log.Printf("⚠️ Failed to cache server copy of booking %s: %v", server.ID, err)
				}
				return server, nil
			}
			return updated, nil
		case sync.OutcomePermanent:
			s.restore(ctx, snapshot)
			log.Printf("🔴 Update of booking %s rejected: %v", updated.ID, out.Err)
			return models.Booking{}, out.Err
		}
		// Transient: keep the optimistic state, queue for replay
	}

	if err := s.enqueue(ctx, models.IntentUpdateBooking, localKeyOf(updated), payload); err != nil {
		s.restore(ctx, snapshot)
		return models.Booking{}, err
	}
	return updated, nil
}

// TransitionBooking moves a booking along its lifecycle (accept, start,
// complete, cancel, dispute). The status graph is enforced before any
// state or storage is touched.
func (s *Store) TransitionBooking(ctx context.Context, id string, action models.BookingAction, reason string) (models.Booking, error) {
	target, ok := action.TargetStatus()
	if !ok {
		return models.Booking{}, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Booking{}, ErrNotFound
	}
	snapshot := s.bookings[i]
	if !snapshot.Status.CanTransitionTo(target) {
		s.mu.Unlock()
		return models.Booking{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, snapshot.Status, target)
	}

	updated := snapshot
	updated.Status = target
	if action == models.BookingActionCancel {
		updated.CancelReason = reason
	}
	updated.UpdatedAt = time.Now().UTC()
	s.bookings[i] = updated
	s.mu.Unlock()

	if err := s.persistOptimistic(ctx, updated); err != nil {
		s.restore(ctx, snapshot)
		return models.Booking{}, err
	}

	if s.isOnline() && updated.Synced() {
		out := s.remote.TransitionBooking(ctx, updated.ID, action, reason)
		switch out.Kind {
		case sync.OutcomeSynced, sync.OutcomeAlreadySynced:
			if out.Booking != nil {
				server := *out.Booking
				server.LocalID = snapshot.LocalID
				s.ApplyServer(server)
				if err := s.persistOptimistic(ctx, server); err != nil {
					log.Printf("⚠️ Failed to cache server copy of booking %s: %v", server.ID, err)
				}
				return server, nil
			}
			return updated, nil
		case sync.OutcomePermanent:
			s.restore(ctx, snapshot)
			log.Printf("🔴 Transition %s of booking %s rejected: %v", action, updated.ID, out.Err)
			return models.Booking{}, out.Err
		}
	}

	payload := models.TransitionBookingPayload{
		BookingID: updated.ID,
		Action:    action,
		Reason:    reason,
	}
	if err := s.enqueue(ctx, models.IntentTransitionBooking, localKeyOf(updated), payload); err != nil {
		s.restore(ctx, snapshot)
		return models.Booking{}, err
	}
	return updated, nil
}

// RescheduleBooking moves a booking to a new time slot. Only pending and
// accepted bookings can move.
func (s *Store) RescheduleBooking(ctx context.Context, id string, scheduledAt time.Time, rescheduledBy string) (models.Booking, error) {
	if scheduledAt.IsZero() {
		return models.Booking{}, fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Booking{}, ErrNotFound
	}
	snapshot := s.bookings[i]
	if !snapshot.Status.CanReschedule() {
		s.mu.Unlock()
		return models.Booking{}, fmt.Errorf("%w: status is %s", ErrNotReschedulable, snapshot.Status)
	}

	updated := snapshot
	updated.ScheduledAt = scheduledAt
	updated.UpdatedAt = time.Now().UTC()
	s.bookings[i] = updated
	s.mu.Unlock()

	if err := s.persistOptimistic(ctx, updated); err != nil {
		s.restore(ctx, snapshot)
		return models.Booking{}, err
	}

	payload := models.ReschedulePayload{
		BookingID:     updated.ID,
		ScheduledAt:   scheduledAt,
		RescheduledBy: rescheduledBy,
	}

	if s.isOnline() && updated.Synced() {
		out := s.remote.RescheduleBooking(ctx, updated.ID, payload)
		switch out.Kind {
		case sync.OutcomeSynced, sync.OutcomeAlreadySynced:
			if out.Booking != nil {
				server := *out.Booking
				server.LocalID = snapshot.LocalID
				s.ApplyServer(server)
				if err := s.persistOptimistic(ctx, server); err != nil {
					log.Printf("⚠️ Failed to cache server copy of booking %s: %v", server.ID, err)
				}
				return server, nil
			}
			return updated, nil
		case sync.OutcomePermanent:
			s.restore(ctx, snapshot)
			log.Printf("🔴 Reschedule of booking %s rejected: %v", updated.ID, out.Err)
			return models.Booking{}, out.Err
		}
	}

	if err := s.enqueue(ctx, models.IntentRescheduleBooking, localKeyOf(updated), payload); err != nil {
		s.restore(ctx, snapshot)
		return models.Booking{}, err
	}
	return updated, nil
}

// localKeyOf picks the identifier an intent should be tagged with: the
// retained local identifier when one exists, the server ID otherwise
func localKeyOf(b models.Booking) string {
	if b.LocalID != "" {
		return b.LocalID
	}
	return b.ID
}

// persistOptimistic writes the booking's current state into the cache so
// the optimistic view survives a restart
func (s *Store) persistOptimistic(ctx context.Context, b models.Booking) error {
	entry, err := models.NewCachedEntity(models.EntityKindBooking, b.ID, b)
	if err != nil {
		return err
	}
	if err := s.cache.Put(ctx, []models.CachedEntity{entry}); err != nil {
		return fmt.Errorf("failed to persist booking locally: %w", err)
	}
	return nil
}

// restore reverts a booking to its pre-mutation snapshot in both the
// visible state and the durable cache
func (s *Store) restore(ctx context.Context, snapshot models.Booking) {
	s.mu.Lock()
	if i := s.indexOf(snapshot.ID); i >= 0 {
		s.bookings[i] = snapshot
	}
	s.mu.Unlock()

	if err := s.persistOptimistic(ctx, snapshot); err != nil {
		log.Printf("⚠️ Failed to restore cached snapshot of booking %s: %v", snapshot.ID, err)
	}
}

// rollbackCreate removes a provisional booking from the visible state and
// the cache after a rejected or unpersistable create
func (s *Store) rollbackCreate(ctx context.Context, localID string) {
	s.mu.Lock()
	if i := s.indexOf(localID); i >= 0 {
		s.removeAt(i)
	}
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, localID); err != nil {
		log.Printf("⚠️ Failed to drop cached snapshot %s: %v", localID, err)
	}
}

// enqueue records a durable intent for the sync engine
func (s *Store) enqueue(ctx context.Context, kind models.IntentType, localID string, payload interface{}) error {
	encoded, err := models.EncodeIntentPayload(payload)
	if err != nil {
		return err
	}
	intent := &models.QueuedIntent{
		Type:    kind,
		LocalID: localID,
		Payload: encoded,
	}
	if err := s.queue.Enqueue(ctx, intent); err != nil {
		return fmt.Errorf("failed to queue %s: %w", kind, err)
	}
	s.publishPending(ctx)
	return nil
}
