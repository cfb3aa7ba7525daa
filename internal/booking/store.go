// Package booking holds the visible booking state and the optimistic
// mutation layer. All writes to the queue and the entity cache flow
// through here or through the sync engine; UI-facing code only reads.
package booking

import (
	"context"
	"errors"
	"log"
	"sort"
	gosync "sync"

	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/store"
	"github.com/servly-app/servlygo/internal/sync"
)

var (
	// ErrNotFound means no visible booking matches the identifier
	ErrNotFound = errors.New("booking not found")

	// ErrInvalidTransition means the requested status edge does not exist
	ErrInvalidTransition = errors.New("status transition not allowed")

	// ErrNotReschedulable means the booking is past the point where it
	// can be moved
	ErrNotReschedulable = errors.New("booking can no longer be rescheduled")

	// ErrValidation means the request is missing required fields
	ErrValidation = errors.New("invalid booking request")
)

// Store is the process-wide booking state container. The visible list is
// most-recent-first; every mutation entry point applies its effect here
// immediately and reconciles with the remote system afterwards.
type Store struct {
	mu       gosync.Mutex
	bookings []models.Booking

	queue     store.MutationQueue
	cache     store.EntityCache
	remote    sync.RemoteAPI
	online    func() bool
	publisher sync.EventPublisher
}

// NewStore creates a booking state container
func NewStore(queue store.MutationQueue, cache store.EntityCache, remote sync.RemoteAPI, online func() bool, publisher sync.EventPublisher) *Store {
	return &Store{
		queue:     queue,
		cache:     cache,
		remote:    remote,
		online:    online,
		publisher: publisher,
	}
}

// SetOnline wires the connectivity signal. The monitor is built after this
// store (it needs the engine, which needs this store), so the signal
// arrives late; until then every mutation takes the offline path.
func (s *Store) SetOnline(online func() bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

// isOnline reads the connectivity signal, treating "not wired yet" as offline
func (s *Store) isOnline() bool {
	s.mu.Lock()
	online := s.online
	s.mu.Unlock()
	return online != nil && online()
}

// Hydrate loads cached booking snapshots into the visible state. Called at
// startup so offline sessions resume where they left off.
func (s *Store) Hydrate(ctx context.Context) error {
	entries, err := s.cache.GetAll(ctx, models.EntityKindBooking)
	if err != nil {
		return err
	}

	bookings := make([]models.Booking, 0, len(entries))
	for i := range entries {
		var b models.Booking
		if err := entries[i].DecodeSnapshot(&b); err != nil {
			log.Printf("⚠️ Skipping undecodable cached booking %s: %v", entries[i].Key, err)
			continue
		}
		bookings = append(bookings, b)
	}

	// Most recent first
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})

	s.mu.Lock()
	s.bookings = bookings
	s.mu.Unlock()

	log.Printf("📦 Hydrated %d bookings from local cache", len(bookings))
	return nil
}

// List returns a copy of the visible bookings, most recent first
func (s *Store) List() []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

// Get finds a booking by server or local identifier
func (s *Store) Get(id string) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.bookings[i], true
	}
	return models.Booking{}, false
}

// Clear drops the visible state (logout / account switch). The durable
// queue and cache are cleared by the caller.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = nil
}

// indexOf matches by current ID or by retained local identifier.
// Caller holds the lock.
func (s *Store) indexOf(id string) int {
	for i := range s.bookings {
		if s.bookings[i].ID == id || (s.bookings[i].LocalID != "" && s.bookings[i].LocalID == id) {
			return i
		}
	}
	return -1
}

// insertHead prepends a booking. Caller holds the lock.
func (s *Store) insertHead(b models.Booking) {
	s.bookings = append([]models.Booking{b}, s.bookings...)
}

// removeAt drops index i. Caller holds the lock.
func (s *Store) removeAt(i int) {
	s.bookings = append(s.bookings[:i], s.bookings[i+1:]...)
}

// ReplaceLocal swaps a provisional booking for the server's version,
// matching on the local identifier. Part of the sync.VisibleState
// contract used by the engine during drains.
func (s *Store) ReplaceLocal(localID string, server models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(localID); i >= 0 {
		s.bookings[i] = server
		return
	}
	// Not visible (e.g. state cleared mid-drain); surface it anyway
	s.insertHead(server)
}

// ApplyServer overwrites a booking with the server's version
func (s *Store) ApplyServer(server models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(server.ID); i >= 0 {
		// Keep the cross-reference if the server response omits it
		if server.LocalID == "" {
			server.LocalID = s.bookings[i].LocalID
		}
		s.bookings[i] = server
		return
	}
	s.insertHead(server)
}

// SetStatus marks a confirmed status transition
func (s *Store) SetStatus(bookingID string, status models.BookingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(bookingID); i >= 0 {
		s.bookings[i].Status = status
	}
}

// ResolveLocal maps a retained local identifier to its server identifier
func (s *Store) ResolveLocal(localID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		if s.bookings[i].LocalID == localID && s.bookings[i].Synced() {
			return s.bookings[i].ID, true
		}
	}
	return "", false
}

// publishPending pushes the queue depth after an enqueue so the UI badge
// stays current between drains
func (s *Store) publishPending(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	pending, err := s.queue.PendingCount(ctx)
	if err != nil {
		return
	}
	s.publisher.Publish(sync.EventPendingCount, map[string]int64{"pending": pending})
}
