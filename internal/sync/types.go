package sync

import (
	"context"
	"time"

	"github.com/servly-app/servlygo/internal/models"
)

// OutcomeKind classifies the result of one delivery attempt. The engine
// switches on this explicitly instead of unwinding errors.
type OutcomeKind int

const (
	// OutcomeSynced means the remote confirmed the mutation
	OutcomeSynced OutcomeKind = iota

	// OutcomeAlreadySynced means the remote recognized the offline
	// identifier as previously processed (duplicate delivery)
	OutcomeAlreadySynced

	// OutcomeTransient means the attempt failed in a retryable way
	// (timeout, 5xx, connection drop)
	OutcomeTransient

	// OutcomePermanent means the remote definitively rejected the
	// mutation (validation failure); retrying cannot help
	OutcomePermanent
)

// String returns a readable name for logs
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSynced:
		return "synced"
	case OutcomeAlreadySynced:
		return "already_synced"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one remote delivery attempt
type Outcome struct {
	Kind    OutcomeKind
	Booking *models.Booking // server representation, when the remote returned one
	Err     error           // cause, for transient/permanent outcomes
}

// RemoteAPI is the marketplace contract the engine drains against
type RemoteAPI interface {
	CreateBooking(ctx context.Context, payload models.CreateBookingPayload, offlineID string) Outcome
	UpdateBooking(ctx context.Context, bookingID string, payload models.UpdateBookingPayload) Outcome
	TransitionBooking(ctx context.Context, bookingID string, action models.BookingAction, reason string) Outcome
	RescheduleBooking(ctx context.Context, bookingID string, payload models.ReschedulePayload) Outcome
}

// Prober answers whether the remote is reachable right now
type Prober interface {
	Ping(ctx context.Context) bool
}

// VisibleState is the in-memory application state the engine publishes
// confirmed results into. Implemented by the booking state container.
type VisibleState interface {
	// ReplaceLocal swaps a provisional booking for the server's version
	ReplaceLocal(localID string, server models.Booking)

	// ApplyServer overwrites a booking with the server's version
	ApplyServer(server models.Booking)

	// SetStatus marks a confirmed status transition
	SetStatus(bookingID string, status models.BookingStatus)

	// ResolveLocal maps a local identifier to the server identifier it
	// was remapped to, if known
	ResolveLocal(localID string) (string, bool)
}

// EventPublisher pushes sync-state events to connected UI clients.
// Implementations must not block.
type EventPublisher interface {
	Publish(event string, payload interface{})
}

// Event names published over the websocket hub
const (
	EventConnectivity = "connectivity"
	EventPendingCount = "pending_count"
	EventDrainResult  = "drain_result"
)

// IntentFailure reports one intent that could not be delivered
type IntentFailure struct {
	IntentID uint              `json:"intentId"`
	LocalID  string            `json:"localId"`
	Type     models.IntentType `json:"type"`
	Error    string            `json:"error"`
	Terminal bool              `json:"terminal"` // removed from the queue, will not retry
}

// DrainResult summarizes one pass over the queue
type DrainResult struct {
	Skipped   bool            `json:"skipped"` // another drain was already in flight
	Processed int             `json:"processed"`
	Synced    int             `json:"synced"`
	Retried   int             `json:"retried"` // left queued for the next drain
	Failures  []IntentFailure `json:"failures,omitempty"`
	Pending   int64           `json:"pending"` // queue depth after the drain
	StartedAt time.Time       `json:"startedAt"`
	Duration  time.Duration   `json:"duration"`
}

// Status is the process-wide connectivity/sync signal surfaced to the UI
type Status struct {
	Online   bool      `json:"online"`
	Syncing  bool      `json:"syncing"`
	Pending  int64     `json:"pending"`
	LastSync time.Time `json:"lastSync"`
}
