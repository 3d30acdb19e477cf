package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound indicates no page exists for the identifier.
	ErrNotFound = errors.New("pages: not found")
	// ErrPathTaken indicates another page already owns the path.
	ErrPathTaken = errors.New("pages: path already exists")
	// ErrInvalidPath indicates an empty or unusable path.
	ErrInvalidPath = errors.New("pages: invalid path")

	errMissingDatabase = errors.New("pages: database handle is required")
)

// Page is an admin-authored page published under a stable path.
type Page struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Title     string    `gorm:"column:title;size:320;not null" json:"title"`
	Path      string    `gorm:"column:path;size:320;uniqueIndex;not null" json:"path"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Published bool      `gorm:"column:published;not null;default:false" json:"published"`
	CreatedBy string    `gorm:"column:created_by;size:190;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Page) TableName() string {
	return "dynamic_pages"
}

// PageSection is one CMS block scoped to a page, keyed by (page, type).
type PageSection struct {
	PageID    string    `gorm:"column:page_id;primaryKey;size:190;not null"`
	Type      string    `gorm:"column:type;primaryKey;size:190;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (PageSection) TableName() string {
	return "page_contents"
}

// ServiceConfig describes the dependencies of the page service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service manages dynamic pages and their per-page content sections.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the page service.
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

// ListAll returns every page, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Page, error) {
	return s.list(ctx, false)
}

// ListPublished returns published pages only, newest first.
func (s *Service) ListPublished(ctx context.Context) ([]Page, error) {
	return s.list(ctx, true)
}

func (s *Service) list(ctx context.Context, publishedOnly bool) ([]Page, error) {
	query := s.db.WithContext(ctx).Model(&Page{})
	if publishedOnly {
		query = query.Where("published = ?", true)
	}
	var records []Page
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("pages: list failed: %w", err)
	}
	return records, nil
}

// Create inserts a page. Paths are normalized to a leading slash and must be
// unique; new pages start unpublished.
func (s *Service) Create(ctx context.Context, createdBy, title, path, content string) (Page, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return Page{}, err
	}
	if taken, err := s.pathTaken(ctx, normalized, ""); err != nil {
		return Page{}, err
	} else if taken {
		return Page{}, ErrPathTaken
	}

	page := Page{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Path:      normalized,
		Content:   content,
		CreatedBy: createdBy,
	}
	if err := s.db.WithContext(ctx).Create(&page).Error; err != nil {
		return Page{}, fmt.Errorf("pages: create failed: %w", err)
	}
	return page, nil
}

// Update carries the optional page fields an admin may change.
type Update struct {
	Title     *string
	Path      *string
	Content   *string
	Published *bool
}

// Update writes the provided fields and returns the resulting page.
func (s *Service) Update(ctx context.Context, pageID string, update Update) (Page, error) {
	if _, err := s.Get(ctx, pageID); err != nil {
		return Page{}, err
	}

	changes := map[string]interface{}{}
	if update.Title != nil {
		changes["title"] = strings.TrimSpace(*update.Title)
	}
	if update.Path != nil {
		normalized, err := normalizePath(*update.Path)
		if err != nil {
			return Page{}, err
		}
		if taken, err := s.pathTaken(ctx, normalized, pageID); err != nil {
			return Page{}, err
		} else if taken {
			return Page{}, ErrPathTaken
		}
		changes["path"] = normalized
	}
	if update.Content != nil {
		changes["content"] = *update.Content
	}
	if update.Published != nil {
		changes["published"] = *update.Published
	}
	if len(changes) == 0 {
		return s.Get(ctx, pageID)
	}

	if err := s.db.WithContext(ctx).Model(&Page{}).Where("id = ?", pageID).Updates(changes).Error; err != nil {
		return Page{}, fmt.Errorf("pages: update failed: %w", err)
	}
	return s.Get(ctx, pageID)
}

// Delete removes the page and its sections.
func (s *Service) Delete(ctx context.Context, pageID string) error {
	if _, err := s.Get(ctx, pageID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("page_id = ?", pageID).Delete(&PageSection{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", pageID).Delete(&Page{}).Error
	})
}

// Get returns the page for the identifier.
func (s *Service) Get(ctx context.Context, pageID string) (Page, error) {
	var page Page
	err := s.db.WithContext(ctx).Where("id = ?", pageID).Take(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("pages: lookup failed: %w", err)
	}
	return page, nil
}

// SectionMap returns the page's sections folded into a type-to-content map.
func (s *Service) SectionMap(ctx context.Context, pageID string) (map[string]json.RawMessage, error) {
	var sections []PageSection
	if err := s.db.WithContext(ctx).Where("page_id = ?", pageID).Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("pages: section list failed: %w", err)
	}
	folded := make(map[string]json.RawMessage, len(sections))
	for _, section := range sections {
		folded[section.Type] = json.RawMessage(section.Content)
	}
	return folded, nil
}

// UpsertSection writes a section for an existing page.
func (s *Service) UpsertSection(ctx context.Context, pageID, sectionType string, body json.RawMessage) error {
	if _, err := s.Get(ctx, pageID); err != nil {
		return err
	}
	section := PageSection{PageID: pageID, Type: sectionType, Content: string(body)}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "page_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).
		Create(&section).Error; err != nil {
		return fmt.Errorf("pages: section upsert failed: %w", err)
	}
	return nil
}

func (s *Service) pathTaken(ctx context.Context, path, excludeID string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&Page{}).Where("path = ?", path)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("pages: path lookup failed: %w", err)
	}
	return count > 0, nil
}

func normalizePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "/" {
		return "", ErrInvalidPath
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed, nil
}
