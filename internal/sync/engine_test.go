package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/servly-app/servlygo/internal/config"
	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/store"
)

// --- In-memory fakes ---

type memQueue struct {
	nextID  uint
	intents []models.QueuedIntent
}

func (q *memQueue) Enqueue(ctx context.Context, intent *models.QueuedIntent) error {
	q.nextID++
	intent.ID = q.nextID
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	q.intents = append(q.intents, *intent)
	return nil
}

func (q *memQueue) ListPending(ctx context.Context) ([]models.QueuedIntent, error) {
	out := make([]models.QueuedIntent, len(q.intents))
	copy(out, q.intents)
	return out, nil
}

func (q *memQueue) Remove(ctx context.Context, intentID uint) error {
	for i := range q.intents {
		if q.intents[i].ID == intentID {
			q.intents = append(q.intents[:i], q.intents[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) MarkRetry(ctx context.Context, intentID uint, attemptErr string) error {
	for i := range q.intents {
		if q.intents[i].ID == intentID {
			q.intents[i].RetryCount++
			q.intents[i].LastError = &attemptErr
		}
	}
	return nil
}

func (q *memQueue) PendingCount(ctx context.Context) (int64, error) {
	return int64(len(q.intents)), nil
}

func (q *memQueue) Clear(ctx context.Context) error {
	q.intents = nil
	return nil
}

type memCache struct {
	entries map[string]models.CachedEntity
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]models.CachedEntity)}
}

func (c *memCache) Put(ctx context.Context, entries []models.CachedEntity) error {
	for _, e := range entries {
		c.entries[e.Key] = e
	}
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) (*models.CachedEntity, error) {
	e, ok := c.entries[key]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return &e, nil
}

func (c *memCache) GetAll(ctx context.Context, kind models.EntityKind) ([]models.CachedEntity, error) {
	var out []models.CachedEntity
	for _, e := range c.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *memCache) Remap(ctx context.Context, localID, serverID string, entry models.CachedEntity) error {
	delete(c.entries, localID)
	c.entries[serverID] = entry
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *memCache) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	var evicted int64
	for key, e := range c.entries {
		if e.CachedAt.Before(cutoff) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted, nil
}

func (c *memCache) Clear(ctx context.Context) error {
	c.entries = make(map[string]models.CachedEntity)
	return nil
}

type memState struct {
	replaced map[string]models.Booking // localID -> server version
	applied  []models.Booking
	statuses map[string]models.BookingStatus
	resolve  map[string]string
}

func newMemState() *memState {
	return &memState{
		replaced: make(map[string]models.Booking),
		statuses: make(map[string]models.BookingStatus),
		resolve:  make(map[string]string),
	}
}

func (s *memState) ReplaceLocal(localID string, server models.Booking) {
	s.replaced[localID] = server
	s.resolve[localID] = server.ID
}

func (s *memState) ApplyServer(server models.Booking) {
	s.applied = append(s.applied, server)
}

func (s *memState) SetStatus(bookingID string, status models.BookingStatus) {
	s.statuses[bookingID] = status
}

func (s *memState) ResolveLocal(localID string) (string, bool) {
	id, ok := s.resolve[localID]
	return id, ok
}

// scriptedRemote answers each call with a canned outcome function
type scriptedRemote struct {
	createFn     func(payload models.CreateBookingPayload, offlineID string) Outcome
	updateFn     func(bookingID string, payload models.UpdateBookingPayload) Outcome
	transitionFn func(bookingID string, action models.BookingAction) Outcome
	rescheduleFn func(bookingID string, payload models.ReschedulePayload) Outcome
}

func (r *scriptedRemote) CreateBooking(ctx context.Context, payload models.CreateBookingPayload, offlineID string) Outcome {
	if r.createFn == nil {
		return Outcome{Kind: OutcomePermanent, Err: errors.New("unexpected create")}
	}
	return r.createFn(payload, offlineID)
}

func (r *scriptedRemote) UpdateBooking(ctx context.Context, bookingID string, payload models.UpdateBookingPayload) Outcome {
	if r.updateFn == nil {
		return Outcome{Kind: OutcomePermanent, Err: errors.New("unexpected update")}
	}
	return r.updateFn(bookingID, payload)
}

func (r *scriptedRemote) TransitionBooking(ctx context.Context, bookingID string, action models.BookingAction, reason string) Outcome {
	if r.transitionFn == nil {
		return Outcome{Kind: OutcomePermanent, Err: errors.New("unexpected transition")}
	}
	return r.transitionFn(bookingID, action)
}

func (r *scriptedRemote) RescheduleBooking(ctx context.Context, bookingID string, payload models.ReschedulePayload) Outcome {
	if r.rescheduleFn == nil {
		return Outcome{Kind: OutcomePermanent, Err: errors.New("unexpected reschedule")}
	}
	return r.rescheduleFn(bookingID, payload)
}

// --- Helpers ---

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Enabled:       true,
		MaxRetries:    5,
		CacheTTLHours: 24,
	}
}

func enqueueIntent(t *testing.T, q *memQueue, kind models.IntentType, localID string, payload interface{}) {
	t.Helper()
	encoded, err := models.EncodeIntentPayload(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if err := q.Enqueue(context.Background(), &models.QueuedIntent{
		Type:    kind,
		LocalID: localID,
		Payload: encoded,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

// --- Tests ---

func TestDrainRemapsCreateBeforeDependentUpdate(t *testing.T) {
	queue := &memQueue{}
	cache := newMemCache()
	state := newMemState()
	localID := models.NewLocalID()

	enqueueIntent(t, queue, models.IntentCreateBooking, localID, models.CreateBookingPayload{
		ServiceID:   "svc-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	notes := "bring ladder"
	enqueueIntent(t, queue, models.IntentUpdateBooking, localID, models.UpdateBookingPayload{
		BookingID: localID,
		Notes:     &notes,
	})

	var updateTargetID string
	remote := &scriptedRemote{
		createFn: func(payload models.CreateBookingPayload, offlineID string) Outcome {
			return Outcome{Kind: OutcomeSynced, Booking: &models.Booking{
				ID:        "srv-1",
				ServiceID: payload.ServiceID,
				Status:    models.BookingStatusPending,
			}}
		},
		updateFn: func(bookingID string, payload models.UpdateBookingPayload) Outcome {
			updateTargetID = bookingID
			return Outcome{Kind: OutcomeSynced, Booking: &models.Booking{ID: bookingID, Notes: *payload.Notes}}
		},
	}

	engine := NewEngine(queue, cache, state, remote, nil, testSyncConfig())
	result := engine.Drain(context.Background())

	if result.Skipped {
		t.Fatal("drain should not be skipped")
	}
	if result.Synced != 2 {
		t.Fatalf("expected 2 synced, got %d (failures: %v)", result.Synced, result.Failures)
	}
	if updateTargetID != "srv-1" {
		t.Errorf("update should target the remapped server ID, got %q", updateTargetID)
	}
	if got := state.replaced[localID].ID; got != "srv-1" {
		t.Errorf("visible state should hold the server booking, got %q", got)
	}
	if _, err := cache.Get(context.Background(), "srv-1"); err != nil {
		t.Errorf("cache should hold the remapped entry: %v", err)
	}
	if _, err := cache.Get(context.Background(), localID); err != store.ErrCacheMiss {
		t.Errorf("cache should have dropped the local entry, got %v", err)
	}
	if n, _ := queue.PendingCount(context.Background()); n != 0 {
		t.Errorf("queue should be empty, has %d", n)
	}
}

func TestDrainDuplicateDeliveryResolvesIntent(t *testing.T) {
	queue := &memQueue{}
	cache := newMemCache()
	state := newMemState()
	localID := models.NewLocalID()

	enqueueIntent(t, queue, models.IntentCreateBooking, localID, models.CreateBookingPayload{
		ServiceID:   "svc-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(time.Hour),
	})

	// The server saw this offline ID in a previous partial drain
	remote := &scriptedRemote{
		createFn: func(payload models.CreateBookingPayload, offlineID string) Outcome {
			return Outcome{Kind: OutcomeAlreadySynced, Booking: &models.Booking{ID: "srv-9"}}
		},
	}

	engine := NewEngine(queue, cache, state, remote, nil, testSyncConfig())
	result := engine.Drain(context.Background())

	if result.Synced != 1 {
		t.Fatalf("duplicate ack should count as synced, got %d", result.Synced)
	}
	if got := state.replaced[localID].ID; got != "srv-9" {
		t.Errorf("duplicate ack should still remap, got %q", got)
	}
	if n, _ := queue.PendingCount(context.Background()); n != 0 {
		t.Errorf("queue should be empty, has %d", n)
	}
}

func TestDrainRetryBudgetExhaustion(t *testing.T) {
	queue := &memQueue{}
	state := newMemState()
	localID := models.NewLocalID()

	enqueueIntent(t, queue, models.IntentCreateBooking, localID, models.CreateBookingPayload{
		ServiceID:   "svc-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(time.Hour),
	})

	remote := &scriptedRemote{
		createFn: func(payload models.CreateBookingPayload, offlineID string) Outcome {
			return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("gateway timeout")}
		},
	}

	engine := NewEngine(queue, newMemCache(), state, remote, nil, testSyncConfig())
	ctx := context.Background()

	// Four drains leave the intent queued with a growing retry count
	for attempt := 1; attempt <= 4; attempt++ {
		result := engine.Drain(ctx)
		if result.Retried != 1 {
			t.Fatalf("drain %d: expected 1 retried, got %d", attempt, result.Retried)
		}
		if queue.intents[0].RetryCount != attempt {
			t.Fatalf("drain %d: expected retry count %d, got %d", attempt, attempt, queue.intents[0].RetryCount)
		}
	}

	// The fifth attempt exhausts the budget: removed as a terminal failure
	result := engine.Drain(ctx)
	if result.Retried != 0 {
		t.Errorf("expected no retries on the final drain, got %d", result.Retried)
	}
	if len(result.Failures) != 1 || !result.Failures[0].Terminal {
		t.Fatalf("expected one terminal failure, got %+v", result.Failures)
	}
	if n, _ := queue.PendingCount(ctx); n != 0 {
		t.Errorf("exhausted intent should be removed, queue has %d", n)
	}
}

func TestDrainPermanentRejectionRemovesImmediately(t *testing.T) {
	queue := &memQueue{}
	state := newMemState()
	localID := models.NewLocalID()

	enqueueIntent(t, queue, models.IntentCreateBooking, localID, models.CreateBookingPayload{
		ServiceID:   "svc-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(time.Hour),
	})

	remote := &scriptedRemote{
		createFn: func(payload models.CreateBookingPayload, offlineID string) Outcome {
			return Outcome{Kind: OutcomePermanent, Err: fmt.Errorf("provider no longer offers this service")}
		},
	}

	engine := NewEngine(queue, newMemCache(), state, remote, nil, testSyncConfig())
	result := engine.Drain(context.Background())

	if len(result.Failures) != 1 || !result.Failures[0].Terminal {
		t.Fatalf("expected one terminal failure, got %+v", result.Failures)
	}
	if result.Retried != 0 {
		t.Errorf("permanent rejection should not be retried")
	}
	if n, _ := queue.PendingCount(context.Background()); n != 0 {
		t.Errorf("rejected intent should be removed, queue has %d", n)
	}
}

func TestDrainKeepsUnresolvedDependencyQueued(t *testing.T) {
	queue := &memQueue{}
	state := newMemState()
	localID := models.NewLocalID()

	// An update whose create has not drained (e.g. its delivery keeps
	// timing out); the update must wait instead of firing with a local ID
	notes := "updated"
	enqueueIntent(t, queue, models.IntentUpdateBooking, localID, models.UpdateBookingPayload{
		BookingID: localID,
		Notes:     &notes,
	})

	remote := &scriptedRemote{
		updateFn: func(bookingID string, payload models.UpdateBookingPayload) Outcome {
			t.Errorf("update should not reach the remote with unresolved ID %s", bookingID)
			return Outcome{Kind: OutcomePermanent}
		},
	}

	engine := NewEngine(queue, newMemCache(), state, remote, nil, testSyncConfig())
	result := engine.Drain(context.Background())

	if result.Retried != 1 {
		t.Fatalf("unresolved dependency should be retried, got %+v", result)
	}
	if n, _ := queue.PendingCount(context.Background()); n != 1 {
		t.Errorf("intent should stay queued, queue has %d", n)
	}
}

func TestDrainSingleFlight(t *testing.T) {
	queue := &memQueue{}
	localID := models.NewLocalID()
	enqueueIntent(t, queue, models.IntentCreateBooking, localID, models.CreateBookingPayload{
		ServiceID:   "svc-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(time.Hour),
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	remote := &scriptedRemote{
		createFn: func(payload models.CreateBookingPayload, offlineID string) Outcome {
			close(entered)
			<-release
			return Outcome{Kind: OutcomeSynced, Booking: &models.Booking{ID: "srv-1"}}
		},
	}

	engine := NewEngine(queue, newMemCache(), newMemState(), remote, nil, testSyncConfig())

	done := make(chan DrainResult)
	go func() {
		done <- engine.Drain(context.Background())
	}()

	<-entered
	second := engine.Drain(context.Background())
	if !second.Skipped {
		t.Error("concurrent drain should be skipped")
	}
	if !engine.IsSyncing() {
		t.Error("engine should report syncing while the first drain is in flight")
	}

	close(release)
	first := <-done
	if first.Synced != 1 {
		t.Errorf("first drain should complete normally, got %+v", first)
	}
	if engine.IsSyncing() {
		t.Error("syncing flag should clear after the drain")
	}
}

func TestDrainConfirmedTransitionUpdatesStatus(t *testing.T) {
	queue := &memQueue{}
	cache := newMemCache()
	state := newMemState()

	// Booking already synced; transition queued while offline
	booking := models.Booking{ID: "srv-5", Status: models.BookingStatusPending}
	entry, _ := models.NewCachedEntity(models.EntityKindBooking, booking.ID, booking)
	cache.Put(context.Background(), []models.CachedEntity{entry})

	enqueueIntent(t, queue, models.IntentTransitionBooking, "srv-5", models.TransitionBookingPayload{
		BookingID: "srv-5",
		Action:    models.BookingActionAccept,
	})

	remote := &scriptedRemote{
		transitionFn: func(bookingID string, action models.BookingAction) Outcome {
			return Outcome{Kind: OutcomeSynced}
		},
	}

	engine := NewEngine(queue, cache, state, remote, nil, testSyncConfig())
	result := engine.Drain(context.Background())

	if result.Synced != 1 {
		t.Fatalf("expected 1 synced, got %+v", result)
	}
	if state.statuses["srv-5"] != models.BookingStatusAccepted {
		t.Errorf("visible status should be accepted, got %s", state.statuses["srv-5"])
	}

	cached, err := cache.Get(context.Background(), "srv-5")
	if err != nil {
		t.Fatalf("cached booking disappeared: %v", err)
	}
	var refreshed models.Booking
	if err := cached.DecodeSnapshot(&refreshed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if refreshed.Status != models.BookingStatusAccepted {
		t.Errorf("cached status should be accepted, got %s", refreshed.Status)
	}
}

func TestDrainCreateAckWithoutEntityStaysQueued(t *testing.T) {
	queue := &memQueue{}
	cache := newMemCache()
	state := newMemState()
	localID := models.NewLocalID()

	enqueueIntent(t, queue, models.IntentCreateBooking, localID, models.CreateBookingPayload{
		ServiceID:   "svc-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(time.Hour),
	})

	// Dedup acknowledgement with no entity body: there is nothing to remap
	// the local identifier to, so the intent must survive for a replay
	remote := &scriptedRemote{
		createFn: func(payload models.CreateBookingPayload, offlineID string) Outcome {
			return Outcome{Kind: OutcomeAlreadySynced}
		},
	}

	engine := NewEngine(queue, cache, state, remote, nil, testSyncConfig())
	result := engine.Drain(context.Background())

	if result.Synced != 0 {
		t.Errorf("bodyless ack must not count as synced, got %d", result.Synced)
	}
	if result.Retried != 1 {
		t.Errorf("expected 1 retried, got %+v", result)
	}
	if n, _ := queue.PendingCount(context.Background()); n != 1 {
		t.Fatalf("intent should still be queued, have %d", n)
	}
	if _, ok := state.replaced[localID]; ok {
		t.Errorf("nothing should have been remapped")
	}
}

func TestEngineGuardsZeroCacheTTL(t *testing.T) {
	queue := &memQueue{}
	cache := newMemCache()
	state := newMemState()

	entry, err := models.NewCachedEntity(models.EntityKindBooking, "srv-1", models.Booking{ID: "srv-1"})
	if err != nil {
		t.Fatalf("build entry: %v", err)
	}
	entry.CachedAt = time.Now().UTC().Add(-time.Hour)
	if err := cache.Put(context.Background(), []models.CachedEntity{entry}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cfg := &config.SyncConfig{Enabled: true, MaxRetries: 5}
	engine := NewEngine(queue, cache, state, &scriptedRemote{}, nil, cfg)
	engine.Drain(context.Background())

	if _, err := cache.Get(context.Background(), "srv-1"); err != nil {
		t.Fatalf("eviction sweep with an unset TTL wiped the cache: %v", err)
	}
}
