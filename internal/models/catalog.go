package models

import (
	"time"
)

// Provider represents a service provider profile owned by the marketplace.
// Cached locally for offline reads only; never mutated by this client.
type Provider struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	AutoAccept  bool    `json:"autoAccept"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Service represents a bookable service listing
type Service struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"providerId"`
	Title       string    `json:"title"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	DurationMin int       `json:"durationMin"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
