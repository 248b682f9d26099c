package notification

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Store persists notification records. Real-time delivery is layered on
// top of it: a notification survives here even when the target user has no
// live connection, and the client picks it up on the next list fetch.
type Store struct {
	db *gorm.DB
}

// NewStore creates a notification store over an open GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the notifications table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Notification{}); err != nil {
		return fmt.Errorf("failed to migrate notifications: %w", err)
	}
	return nil
}

// Create persists a new notification record.
func (s *Store) Create(ctx context.Context, n *Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// GetByID fetches one notification.
func (s *Store) GetByID(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query notification: %w", err)
	}
	return &n, nil
}

// ListForUser returns the user's notifications plus the admin-wide class,
// newest first. This is the polling/fetch path that backs durable
// delivery.
func (s *Store) ListForUser(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? OR user_id IS NULL", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// MarkRead flips the read flag on. Read status is monotonic: this is the
// only mutation the store offers and it never writes false. Returns the
// updated record for re-broadcast.
func (s *Store) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}

	err = s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}

	n.IsRead = true
	return n, nil
}
