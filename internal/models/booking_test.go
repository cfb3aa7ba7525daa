package models

import (
	"strings"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{BookingStatusPending, BookingStatusAccepted, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusInProgress, false},
		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusAccepted, BookingStatusInProgress, true},
		{BookingStatusAccepted, BookingStatusCancelled, true},
		{BookingStatusAccepted, BookingStatusCompleted, false},
		{BookingStatusInProgress, BookingStatusCompleted, true},
		{BookingStatusInProgress, BookingStatusCancelled, false},
		{BookingStatusCompleted, BookingStatusDisputed, true},
		{BookingStatusCompleted, BookingStatusCancelled, false},
		{BookingStatusCancelled, BookingStatusAccepted, false},
		{BookingStatusDisputed, BookingStatusCompleted, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestActionTargets(t *testing.T) {
	cases := map[BookingAction]BookingStatus{
		BookingActionAccept:   BookingStatusAccepted,
		BookingActionStart:    BookingStatusInProgress,
		BookingActionComplete: BookingStatusCompleted,
		BookingActionCancel:   BookingStatusCancelled,
	}
	for action, want := range cases {
		got, ok := action.TargetStatus()
		if !ok {
			t.Errorf("action %s has no target", action)
			continue
		}
		if got != want {
			t.Errorf("action %s: expected %s, got %s", action, want, got)
		}
	}

	if _, ok := BookingAction("explode").TargetStatus(); ok {
		t.Error("unknown action should have no target")
	}
}

func TestCanReschedule(t *testing.T) {
	reschedulable := map[BookingStatus]bool{
		BookingStatusPending:    true,
		BookingStatusAccepted:   true,
		BookingStatusInProgress: false,
		BookingStatusCompleted:  false,
		BookingStatusCancelled:  false,
		BookingStatusDisputed:   false,
	}
	for status, want := range reschedulable {
		if got := status.CanReschedule(); got != want {
			t.Errorf("%s: expected CanReschedule=%v, got %v", status, want, got)
		}
	}
}

func TestLocalID(t *testing.T) {
	id := NewLocalID()

	if !strings.HasPrefix(id, "local-") {
		t.Errorf("local ID should carry the local- prefix, got %s", id)
	}
	if !IsLocalID(id) {
		t.Errorf("IsLocalID should recognize %s", id)
	}
	if IsLocalID("bk-12345") {
		t.Error("server identifiers should not be detected as local")
	}

	// No collisions across rapid generation
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		next := NewLocalID()
		if seen[next] {
			t.Fatalf("duplicate local ID generated: %s", next)
		}
		seen[next] = true
	}
}

func TestBookingSynced(t *testing.T) {
	local := Booking{ID: NewLocalID()}
	if local.Synced() {
		t.Error("booking with local identifier should not be synced")
	}

	server := Booking{ID: "bk-789", LocalID: local.ID}
	if !server.Synced() {
		t.Error("booking with server identifier should be synced")
	}

	empty := Booking{}
	if empty.Synced() {
		t.Error("booking without identifier should not be synced")
	}
}
