package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("content: database handle is required")

// Section is one admin-managed CMS block, keyed by type. Content is stored
// as raw JSON so its shape is entirely up to the admin frontend.
type Section struct {
	Type      string    `gorm:"column:type;primaryKey;size:190;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Section) TableName() string {
	return "content_sections"
}

// ServiceConfig describes the dependencies of the content service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service manages the site-wide CMS sections.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the content service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// All returns every section folded into a type-to-content map.
func (s *Service) All(ctx context.Context) (map[string]json.RawMessage, error) {
	var sections []Section
	if err := s.db.WithContext(ctx).Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("content: list failed: %w", err)
	}

	folded := make(map[string]json.RawMessage, len(sections))
	for _, section := range sections {
		folded[section.Type] = json.RawMessage(section.Content)
	}
	return folded, nil
}

// Upsert writes the section content, creating the row when absent.
func (s *Service) Upsert(ctx context.Context, sectionType string, body json.RawMessage) error {
	section := Section{Type: sectionType, Content: string(body)}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).
		Create(&section).Error; err != nil {
		return fmt.Errorf("content: upsert failed: %w", err)
	}
	return nil
}
