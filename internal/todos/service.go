package todos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskforge-io/taskforge/internal/users"
)

var (
	// ErrNotFound covers both a missing todo and an access denial; callers
	// must not be able to distinguish the two.
	ErrNotFound = errors.New("todos: not found or unauthorized")
	// ErrUserNotFound indicates the collaborator target does not exist.
	ErrUserNotFound = errors.New("todos: user not found")
	// ErrAlreadyCollaborator indicates a duplicate grant.
	ErrAlreadyCollaborator = errors.New("todos: already a collaborator")
	// ErrNoFields indicates an update request carried nothing to change.
	ErrNoFields = errors.New("todos: no fields to update")
	// ErrEmptyTitle indicates a create request without a title.
	ErrEmptyTitle = errors.New("todos: title is required")

	errMissingDatabase = errors.New("todos: database handle is required")
)

// ServiceConfig describes the dependencies of the todo service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns todo persistence: CRUD, collaborator grants and comments.
// It is also the access resolver consulted by the realtime gateway.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the todo service.
func NewService(cfg ServiceConfig) (*Service, error) {
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
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// CanAccess reports whether the user owns the todo or holds a collaborator
// grant. Always a fresh query; results are never cached.
func (s *Service) CanAccess(ctx context.Context, todoID, userID string) (bool, error) {
	var owned int64
	if err := s.db.WithContext(ctx).Model(&Todo{}).
		Where("id = ? AND owner_id = ?", todoID, userID).
		Count(&owned).Error; err != nil {
		return false, fmt.Errorf("todos: owner check failed: %w", err)
	}
	if owned > 0 {
		return true, nil
	}

	var granted int64
	if err := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("todo_id = ? AND user_id = ?", todoID, userID).
		Count(&granted).Error; err != nil {
		return false, fmt.Errorf("todos: grant check failed: %w", err)
	}
	return granted > 0, nil
}

// Create inserts a todo owned by ownerID, with optional initial collaborator
// grants. Unknown collaborator ids are skipped.
func (s *Service) Create(ctx context.Context, ownerID, title, content string, collaboratorIDs []string) (Todo, []string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Todo{}, nil, ErrEmptyTitle
	}

	todo := Todo{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Title:   title,
		Content: content,
	}

	var granted []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&todo).Error; err != nil {
			return err
		}
		for _, collaboratorID := range collaboratorIDs {
			if collaboratorID == ownerID {
				continue
			}
			var exists int64
			if err := tx.Model(&users.User{}).Where("id = ?", collaboratorID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				s.logger.Warn("skipping unknown collaborator",
					zap.String("todo_id", todo.ID),
					zap.String("user_id", collaboratorID))
				continue
			}
			if err := tx.Create(&Collaborator{TodoID: todo.ID, UserID: collaboratorID}).Error; err != nil {
				return err
			}
			granted = append(granted, collaboratorID)
		}
		return nil
	})
	if err != nil {
		return Todo{}, nil, fmt.Errorf("todos: create failed: %w", err)
	}
	return todo, granted, nil
}

// Get returns the todo when the user may access it.
func (s *Service) Get(ctx context.Context, todoID, userID string) (Todo, error) {
	ok, err := s.CanAccess(ctx, todoID, userID)
	if err != nil {
		return Todo{}, err
	}
	if !ok {
		return Todo{}, ErrNotFound
	}
	return s.fetch(ctx, todoID)
}

// ListResult is one page of todos.
type ListResult struct {
	Todos      []Todo
	TotalCount int64
	HasMore    bool
}

// List returns one page of the user's own todos, newest first.
func (s *Service) List(ctx context.Context, ownerID string, page, limit int, status StatusFilter) (ListResult, error) {
	if page < 1 || limit < 1 {
		return ListResult{}, fmt.Errorf("todos: invalid pagination page=%d limit=%d", page, limit)
	}

	query := s.db.WithContext(ctx).Model(&Todo{}).Where("owner_id = ?", ownerID)
	switch status {
	case StatusActive:
		query = query.Where("completed = ?", false)
	case StatusCompleted:
		query = query.Where("completed = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return ListResult{}, fmt.Errorf("todos: count failed: %w", err)
	}

	var records []Todo
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit + 1).
		Find(&records).Error; err != nil {
		return ListResult{}, fmt.Errorf("todos: list failed: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	return ListResult{Todos: records, TotalCount: total, HasMore: hasMore}, nil
}

// Update carries the optional todo fields an editor may change.
type Update struct {
	Title     *string
	Content   *string
	Completed *bool
}

// ApplyUpdate writes the provided fields when actorID is the owner or a
// collaborator and returns the resulting todo.
func (s *Service) ApplyUpdate(ctx context.Context, todoID, actorID string, update Update) (Todo, error) {
	ok, err := s.CanAccess(ctx, todoID, actorID)
	if err != nil {
		return Todo{}, err
	}
	if !ok {
		return Todo{}, ErrNotFound
	}

	changes := map[string]interface{}{}
	if update.Title != nil {
		changes["title"] = strings.TrimSpace(*update.Title)
	}
	if update.Content != nil {
		changes["content"] = *update.Content
	}
	if update.Completed != nil {
		changes["completed"] = *update.Completed
	}
	if len(changes) == 0 {
		return Todo{}, ErrNoFields
	}
	changes["updated_at"] = s.clock().UTC()

	if err := s.db.WithContext(ctx).Model(&Todo{}).Where("id = ?", todoID).Updates(changes).Error; err != nil {
		return Todo{}, fmt.Errorf("todos: update failed: %w", err)
	}
	return s.fetch(ctx, todoID)
}

// Delete removes the todo with its grants and comments. Owner only. The
// removed todo and the user ids of its collaborators are returned so the
// caller can notify them.
func (s *Service) Delete(ctx context.Context, todoID, ownerID string) (Todo, []string, error) {
	todo, err := s.fetch(ctx, todoID)
	if err != nil {
		return Todo{}, nil, err
	}
	if todo.OwnerID != ownerID {
		return Todo{}, nil, ErrNotFound
	}

	collaboratorIDs, err := s.collaboratorIDs(ctx, todoID)
	if err != nil {
		return Todo{}, nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("todo_id = ?", todoID).Delete(&Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("todo_id = ?", todoID).Delete(&Collaborator{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", todoID).Delete(&Todo{}).Error
	})
	if err != nil {
		return Todo{}, nil, fmt.Errorf("todos: delete failed: %w", err)
	}
	return todo, collaboratorIDs, nil
}

// AddCollaborator grants collaboratorID access to a todo owned by ownerID.
func (s *Service) AddCollaborator(ctx context.Context, todoID, ownerID, collaboratorID string) (Collaborator, error) {
	todo, err := s.fetch(ctx, todoID)
	if err != nil {
		return Collaborator{}, err
	}
	if todo.OwnerID != ownerID {
		return Collaborator{}, ErrNotFound
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&users.User{}).Where("id = ?", collaboratorID).Count(&exists).Error; err != nil {
		return Collaborator{}, fmt.Errorf("todos: user lookup failed: %w", err)
	}
	if exists == 0 {
		return Collaborator{}, ErrUserNotFound
	}

	var granted int64
	if err := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("todo_id = ? AND user_id = ?", todoID, collaboratorID).
		Count(&granted).Error; err != nil {
		return Collaborator{}, fmt.Errorf("todos: grant lookup failed: %w", err)
	}
	if granted > 0 {
		return Collaborator{}, ErrAlreadyCollaborator
	}

	grant := Collaborator{TodoID: todoID, UserID: collaboratorID}
	if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
		return Collaborator{}, fmt.Errorf("todos: grant failed: %w", err)
	}
	return grant, nil
}

// AddComment appends a comment when actorID may access the todo.
func (s *Service) AddComment(ctx context.Context, todoID, actorID, content string) (Comment, error) {
	ok, err := s.CanAccess(ctx, todoID, actorID)
	if err != nil {
		return Comment{}, err
	}
	if !ok {
		return Comment{}, ErrNotFound
	}

	comment := Comment{
		ID:      uuid.NewString(),
		TodoID:  todoID,
		UserID:  actorID,
		Content: content,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return Comment{}, fmt.Errorf("todos: comment failed: %w", err)
	}
	return comment, nil
}

// ListComments returns a todo's comments oldest first.
func (s *Service) ListComments(ctx context.Context, todoID, actorID string) ([]Comment, error) {
	ok, err := s.CanAccess(ctx, todoID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("todo_id = ?", todoID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("todos: comment list failed: %w", err)
	}
	return comments, nil
}

func (s *Service) fetch(ctx context.Context, todoID string) (Todo, error) {
	var todo Todo
	err := s.db.WithContext(ctx).Where("id = ?", todoID).Take(&todo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Todo{}, ErrNotFound
	}
	if err != nil {
		return Todo{}, fmt.Errorf("todos: lookup failed: %w", err)
	}
	return todo, nil
}

func (s *Service) collaboratorIDs(ctx context.Context, todoID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("todo_id = ?", todoID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("todos: collaborator list failed: %w", err)
	}
	return ids, nil
}
