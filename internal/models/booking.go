package models

import (
	"time"
)

// BookingStatus defines the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"     // Created, awaiting provider
	BookingStatusAccepted   BookingStatus = "accepted"    // Provider accepted
	BookingStatusInProgress BookingStatus = "in_progress" // Work started
	BookingStatusCompleted  BookingStatus = "completed"   // Work finished
	BookingStatusCancelled  BookingStatus = "cancelled"   // Cancelled before work started
	BookingStatusDisputed   BookingStatus = "disputed"    // Customer disputed a completed booking
)

// BookingAction is a status-transition verb accepted by the remote API
// (POST /bookings/{id}/{action})
type BookingAction string

const (
	BookingActionAccept   BookingAction = "accept"
	BookingActionStart    BookingAction = "start"
	BookingActionComplete BookingAction = "complete"
	BookingActionCancel   BookingAction = "cancel"
)

// actionTargets maps each action to the status it produces
var actionTargets = map[BookingAction]BookingStatus{
	BookingActionAccept:   BookingStatusAccepted,
	BookingActionStart:    BookingStatusInProgress,
	BookingActionComplete: BookingStatusCompleted,
	BookingActionCancel:   BookingStatusCancelled,
}

// TargetStatus returns the status the action transitions into
func (a BookingAction) TargetStatus() (BookingStatus, bool) {
	target, ok := actionTargets[a]
	return target, ok
}

// CanTransitionTo reports whether the status edge s -> target exists.
// The lifecycle is pending -> accepted -> in_progress -> completed, with
// cancelled reachable from pending or accepted only and disputed reachable
// from completed only.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return target == BookingStatusAccepted || target == BookingStatusCancelled
	case BookingStatusAccepted:
		return target == BookingStatusInProgress || target == BookingStatusCancelled
	case BookingStatusInProgress:
		return target == BookingStatusCompleted
	case BookingStatusCompleted:
		return target == BookingStatusDisputed
	default:
		return false
	}
}

// CanReschedule reports whether a booking in this status may still be moved.
// Rescheduling is only allowed early in the lifecycle.
func (s BookingStatus) CanReschedule() bool {
	return s == BookingStatusPending || s == BookingStatusAccepted
}

// Booking represents a service booking owned by the remote marketplace.
// While unsynced it carries a client-generated local identifier in ID;
// once the server acknowledges it, ID becomes the server identifier and
// LocalID is retained as a cross-reference only.
type Booking struct {
	ID           string        `json:"id"`
	LocalID      string        `json:"localId,omitempty"`
	CustomerID   string        `json:"customerId"`
	ProviderID   string        `json:"providerId"`
	ServiceID    string        `json:"serviceId"`
	Status       BookingStatus `json:"status"`
	ScheduledAt  time.Time     `json:"scheduledAt"`
	Price        float64       `json:"price"`
	Notes        string        `json:"notes,omitempty"`
	CancelReason string        `json:"cancelReason,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Synced reports whether the booking carries a server identifier
func (b *Booking) Synced() bool {
	return b.ID != "" && !IsLocalID(b.ID)
}
