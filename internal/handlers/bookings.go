package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/servly-app/servlygo/internal/booking"
	"github.com/servly-app/servlygo/internal/models"
)

// UpdateBookingRequest carries the editable booking fields. Pointer fields
// distinguish "unset" from "set to zero".
type UpdateBookingRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// TransitionRequest carries an optional reason (cancel)
type TransitionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RescheduleRequest carries the new time slot
type RescheduleRequest struct {
	ScheduledAt   time.Time `json:"scheduledAt"`
	RescheduledBy string    `json:"rescheduledBy,omitempty"`
}

// createBooking applies a new booking optimistically. The response is 201
// with the server booking when confirmed inline, or 202 with the
// provisional booking when it was queued for later delivery.
func (r *Router) createBooking(w http.ResponseWriter, req *http.Request) {
	var payload models.CreateBookingPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	b, err := r.bookings.CreateBooking(req.Context(), payload)
	if err != nil {
		respondBookingError(w, err)
		return
	}

	if b.Synced() {
		respondJSON(w, http.StatusCreated, b)
		return
	}
	respondJSON(w, http.StatusAccepted, b)
}

// listBookings returns the visible booking state, most recent first.
// Served from memory, so it works identically offline.
func (r *Router) listBookings(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": r.bookings.List(),
		"online":   r.monitor.IsOnline(),
	})
}

// getBooking returns one booking by server or local identifier
func (r *Router) getBooking(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	b, ok := r.bookings.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Booking not found")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// updateBooking edits schedule or notes
func (r *Router) updateBooking(w http.ResponseWriter, req *http.Request) {
	var body UpdateBookingRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.ScheduledAt == nil && body.Notes == nil {
		respondError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	id := mux.Vars(req)["id"]
	b, err := r.bookings.UpdateBooking(req.Context(), id, body.ScheduledAt, body.Notes)
	if err != nil {
		respondBookingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// transitionBooking moves a booking along its lifecycle
func (r *Router) transitionBooking(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	action := models.BookingAction(vars["action"])

	var body TransitionRequest
	if req.Body != nil {
		// Body is optional for everything except cancel reasons
		json.NewDecoder(req.Body).Decode(&body)
	}

	b, err := r.bookings.TransitionBooking(req.Context(), vars["id"], action, body.Reason)
	if err != nil {
		respondBookingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// rescheduleBooking moves a booking to a new time slot
func (r *Router) rescheduleBooking(w http.ResponseWriter, req *http.Request) {
	var body RescheduleRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id := mux.Vars(req)["id"]
	b, err := r.bookings.RescheduleBooking(req.Context(), id, body.ScheduledAt, body.RescheduledBy)
	if err != nil {
		respondBookingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// respondBookingError maps the optimistic layer's errors to HTTP statuses
func respondBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrNotReschedulable):
		respondError(w, http.StatusConflict, err.Error())
	default:
		// Definitive rejection from the marketplace, or local storage failure
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	}
}
