package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// EntityKind classifies cached remote entities
type EntityKind string

const (
	EntityKindBooking  EntityKind = "booking"
	EntityKindProvider EntityKind = "provider"
	EntityKindService  EntityKind = "service"
)

// CachedEntity is the last confirmed or optimistic copy of a remote entity,
// keyed by its canonical identifier (or local identifier while unsynced).
// Used to serve reads when disconnected and for staleness sweeps.
type CachedEntity struct {
	Key      string         `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Kind     EntityKind     `gorm:"type:varchar(50);not null;index:idx_cache_kind" json:"kind"`
	Snapshot datatypes.JSON `json:"snapshot"`
	CachedAt time.Time      `gorm:"not null;index:idx_cache_age" json:"cachedAt"`
}

// TableName specifies the table name
func (CachedEntity) TableName() string {
	return "cached_entities"
}

// NewCachedEntity marshals an entity snapshot for storage under key
func NewCachedEntity(kind EntityKind, key string, entity interface{}) (CachedEntity, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return CachedEntity{}, fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}
	return CachedEntity{
		Key:      key,
		Kind:     kind,
		Snapshot: datatypes.JSON(data),
		CachedAt: time.Now().UTC(),
	}, nil
}

// DecodeSnapshot unmarshals the stored snapshot into out
func (c *CachedEntity) DecodeSnapshot(out interface{}) error {
	if err := json.Unmarshal(c.Snapshot, out); err != nil {
		return fmt.Errorf("failed to decode %s snapshot %s: %w", c.Kind, c.Key, err)
	}
	return nil
}
