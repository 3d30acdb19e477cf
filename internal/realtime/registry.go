package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("realtime: database handle is required")

// Connection maps one live transport session to its authenticated user. A
// row exists exactly as long as the session is established; a user holds one
// row per open tab or device.
type Connection struct {
	ConnectionID string    `gorm:"column:connection_id;primaryKey;size:190;not null"`
	UserID       string    `gorm:"column:user_id;size:190;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Connection) TableName() string {
	return "connections"
}

// Registry persists the connection-to-user mapping.
type Registry struct {
	db *gorm.DB
}

// NewRegistry constructs the connection registry.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Registry{db: db}, nil
}

// Register records the connection. Any stale row with the same connection id
// is removed first, so a reused identifier always ends with exactly one row
// and the last register wins.
func (r *Registry) Register(ctx context.Context, connectionID, userID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("connection_id = ?", connectionID).Delete(&Connection{}).Error; err != nil {
			return err
		}
		return tx.Create(&Connection{ConnectionID: connectionID, UserID: userID}).Error
	})
	if err != nil {
		return fmt.Errorf("realtime: register failed: %w", err)
	}
	return nil
}

// Unregister removes the connection row; absent rows are a no-op.
func (r *Registry) Unregister(ctx context.Context, connectionID string) error {
	if err := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Delete(&Connection{}).Error; err != nil {
		return fmt.Errorf("realtime: unregister failed: %w", err)
	}
	return nil
}

// ListByUser returns the user's connections in registration order.
func (r *Registry) ListByUser(ctx context.Context, userID string) ([]Connection, error) {
	var rows []Connection
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("realtime: list failed: %w", err)
	}
	return rows, nil
}
