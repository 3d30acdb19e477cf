package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the notification does not exist or belongs to a
	// different user; the two cases are indistinguishable to callers.
	ErrNotFound = errors.New("notifications: not found")

	errMissingDatabase = errors.New("notifications: database handle is required")
)

// Notification is the durable record of a user-directed message. It outlives
// the realtime push and is the fallback a client polls for after a missed
// delivery.
type Notification struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index" json:"user_id"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`
	TodoID    *string   `gorm:"column:todo_id;size:190" json:"todo_id,omitempty"`
	Read      bool      `gorm:"column:read;not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// StoreConfig describes the dependencies of the notification store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists and reads notifications.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs the notification store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Create inserts a notification for the recipient. todoID is optional.
func (s *Store) Create(ctx context.Context, userID, message string, todoID *string) (Notification, error) {
	notification := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		TodoID:    todoID,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return Notification{}, fmt.Errorf("notifications: create failed: %w", err)
	}
	return notification, nil
}

// ListByUser returns the recipient's notifications, most recent first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Notification, error) {
	var records []Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("notifications: list failed: %w", err)
	}
	return records, nil
}

// MarkRead flips the read flag. Ownership is part of the lookup: a
// notification belonging to another user yields ErrNotFound.
func (s *Store) MarkRead(ctx context.Context, notificationID, requestingUserID string) (Notification, error) {
	var notification Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, requestingUserID).
		Take(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, fmt.Errorf("notifications: lookup failed: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", notificationID).
		Update("read", true).Error; err != nil {
		return Notification{}, fmt.Errorf("notifications: update failed: %w", err)
	}
	notification.Read = true
	return notification, nil
}
