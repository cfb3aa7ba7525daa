package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/servly-app/servlygo/internal/database"
	"github.com/servly-app/servlygo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCacheMiss is returned when no snapshot exists under the requested key
var ErrCacheMiss = errors.New("entity not cached")

// GormEntityCache implements EntityCache on the local PostgreSQL store
type GormEntityCache struct {
	db *database.DB
}

// NewEntityCache creates a cache repository
func NewEntityCache(db *database.DB) *GormEntityCache {
	return &GormEntityCache{db: db}
}

// Put overwrites the snapshots for the given keys in a single transaction.
// Either every entry lands with a fresh timestamp or none does; a partial
// batch is never visible.
func (c *GormEntityCache) Put(ctx context.Context, entries []models.CachedEntity) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range entries {
		entries[i].CachedAt = now
	}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&entries).Error
	if err != nil {
		return fmt.Errorf("failed to write %d cache entries: %w", len(entries), err)
	}
	return nil
}

// Get returns the snapshot stored under key
func (c *GormEntityCache) Get(ctx context.Context, key string) (*models.CachedEntity, error) {
	var entry models.CachedEntity
	err := c.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return &entry, nil
}

// GetAll returns every cached snapshot of a kind, newest first
func (c *GormEntityCache) GetAll(ctx context.Context, kind models.EntityKind) ([]models.CachedEntity, error) {
	var entries []models.CachedEntity
	err := c.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("cached_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read cached %s entries: %w", kind, err)
	}
	return entries, nil
}

// Remap atomically retires a local-identifier key and stores the server
// entity under its canonical key. The snapshot itself keeps the local
// identifier as a cross-reference field.
func (c *GormEntityCache) Remap(ctx context.Context, localID, serverID string, entry models.CachedEntity) error {
	entry.Key = serverID
	entry.CachedAt = time.Now().UTC()
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.CachedEntity{}, "key = ?", localID).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).Create(&entry).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remap cache entry %s -> %s: %w", localID, serverID, err)
	}
	return nil
}

// Delete removes a single snapshot
func (c *GormEntityCache) Delete(ctx context.Context, key string) error {
	err := c.db.WithContext(ctx).Delete(&models.CachedEntity{}, "key = ?", key).Error
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// EvictOlderThan removes snapshots cached before the cutoff. Runs
// opportunistically after successful drains, not on a timer.
func (c *GormEntityCache) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result := c.db.WithContext(ctx).
		Where("cached_at < ?", cutoff).
		Delete(&models.CachedEntity{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to evict stale cache entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Clear removes everything
func (c *GormEntityCache) Clear(ctx context.Context) error {
	err := c.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&models.CachedEntity{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear entity cache: %w", err)
	}
	return nil
}
