package store

import (
	"context"
	"fmt"
	"time"

	"github.com/servly-app/servlygo/internal/database"
	"github.com/servly-app/servlygo/internal/models"
	"gorm.io/gorm"
)

// GormMutationQueue implements MutationQueue on the local PostgreSQL store
type GormMutationQueue struct {
	db *database.DB
}

// NewMutationQueue creates a queue repository
func NewMutationQueue(db *database.DB) *GormMutationQueue {
	return &GormMutationQueue{db: db}
}

// Enqueue persists an intent record. The caller gets the sequence ID back
// synchronously; delivery happens later.
func (q *GormMutationQueue) Enqueue(ctx context.Context, intent *models.QueuedIntent) error {
	if intent.LocalID == "" {
		return fmt.Errorf("intent is missing a local identifier")
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	if err := q.db.WithContext(ctx).Create(intent).Error; err != nil {
		return fmt.Errorf("failed to enqueue %s intent: %w", intent.Type, err)
	}
	return nil
}

// ListPending returns all intents in creation order, oldest first
func (q *GormMutationQueue) ListPending(ctx context.Context) ([]models.QueuedIntent, error) {
	var intents []models.QueuedIntent
	err := q.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&intents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending intents: %w", err)
	}
	return intents, nil
}

// Remove deletes a single intent. Deleting an already-absent intent is a
// no-op, so a retried removal after a crash cannot fail.
func (q *GormMutationQueue) Remove(ctx context.Context, intentID uint) error {
	err := q.db.WithContext(ctx).
		Delete(&models.QueuedIntent{}, intentID).Error
	if err != nil {
		return fmt.Errorf("failed to remove intent %d: %w", intentID, err)
	}
	return nil
}

// MarkRetry increments the retry counter and records the last error
func (q *GormMutationQueue) MarkRetry(ctx context.Context, intentID uint, attemptErr string) error {
	err := q.db.WithContext(ctx).
		Model(&models.QueuedIntent{}).
		Where("id = ?", intentID).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  attemptErr,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark retry for intent %d: %w", intentID, err)
	}
	return nil
}

// PendingCount returns the number of queued intents
func (q *GormMutationQueue) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&models.QueuedIntent{}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending intents: %w", err)
	}
	return count, nil
}

// Clear removes every intent
func (q *GormMutationQueue) Clear(ctx context.Context) error {
	err := q.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&models.QueuedIntent{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear mutation queue: %w", err)
	}
	return nil
}
