package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// IntentType discriminates the payload shape of a queued mutation intent
type IntentType string

const (
	IntentCreateBooking     IntentType = "CREATE_BOOKING"
	IntentUpdateBooking     IntentType = "UPDATE_BOOKING"
	IntentTransitionBooking IntentType = "TRANSITION_BOOKING"
	IntentRescheduleBooking IntentType = "RESCHEDULE_BOOKING"
)

// CreateBookingPayload replays a booking creation against the remote API
type CreateBookingPayload struct {
	ServiceID   string    `json:"serviceId"`
	ProviderID  string    `json:"providerId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Notes       string    `json:"notes,omitempty"`
	Price       float64   `json:"price,omitempty"`
}

// UpdateBookingPayload replays a field update. BookingID may still be a
// local identifier when the create it depends on has not drained yet.
type UpdateBookingPayload struct {
	BookingID   string     `json:"bookingId"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// TransitionBookingPayload replays a status transition (accept, start,
// complete, cancel)
type TransitionBookingPayload struct {
	BookingID string        `json:"bookingId"`
	Action    BookingAction `json:"action"`
	Reason    string        `json:"reason,omitempty"`
}

// ReschedulePayload replays a reschedule request
type ReschedulePayload struct {
	BookingID     string    `json:"bookingId"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	RescheduledBy string    `json:"rescheduledBy"`
}

// QueuedIntent is one durable record of a user-initiated change the remote
// system has not confirmed. Rows are appended by the optimistic layer and
// mutated (retry bookkeeping) or deleted (resolution) only by the sync
// engine. Drain order is creation order, oldest first.
type QueuedIntent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Type       IntentType     `gorm:"type:varchar(50);not null" json:"type"`
	LocalID    string         `gorm:"type:varchar(100);not null;index:idx_intent_local" json:"localId"`
	Payload    datatypes.JSON `json:"payload"`
	RetryCount int            `gorm:"default:0" json:"retryCount"`
	LastError  *string        `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_intent_created" json:"createdAt"`
}

// TableName specifies the table name
func (QueuedIntent) TableName() string {
	return "queued_intents"
}

// EncodeIntentPayload marshals a typed payload into the JSON column
func EncodeIntentPayload(payload interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent payload: %w", err)
	}
	return datatypes.JSON(data), nil
}

// DecodeIntentPayload unmarshals the JSON column into the typed payload
// matching the intent's type tag
func DecodeIntentPayload(intent *QueuedIntent, out interface{}) error {
	if err := json.Unmarshal(intent.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload for intent %d: %w", intent.Type, intent.ID, err)
	}
	return nil
}
