package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates the email is already bound to another account.
	ErrEmailTaken = errors.New("users: email already in use")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrAccountSuspended indicates the account exists but is suspended.
	ErrAccountSuspended = errors.New("users: account suspended")
	// ErrNotFound indicates no user exists for the identifier.
	ErrNotFound = errors.New("users: not found")
	// ErrWrongPassword indicates a password confirmation failed.
	ErrWrongPassword = errors.New("users: password incorrect")
	// ErrNoFields indicates an update request carried nothing to change.
	ErrNoFields = errors.New("users: no fields to update")

	errMissingDatabase = errors.New("users: database handle is required")
)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages accounts: registration, authentication, profiles and admin actions.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
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

// Register creates an account with a bcrypt password hash and the USER role.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	email = normalizeEmail(email)

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return User{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("users: lookup failed: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: password hash failed: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         "USER",
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("users: create failed: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Authenticate verifies the credential pair and rejects suspended accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("users: lookup failed: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	if user.Suspended {
		return User{}, ErrAccountSuspended
	}
	return user, nil
}

// Get returns the user for the identifier.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: lookup failed: %w", err)
	}
	return user, nil
}

// ProfileUpdate carries the optional profile fields a user may change.
type ProfileUpdate struct {
	Name            string
	Email           string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfile applies the provided fields. Password changes require the
// current password; email changes require the new address to be free.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}

	changes := map[string]interface{}{}
	if name := strings.TrimSpace(update.Name); name != "" {
		changes["name"] = name
	}
	if email := normalizeEmail(update.Email); email != "" && email != user.Email {
		var existing User
		err := s.db.WithContext(ctx).Where("email = ? AND id <> ?", email, userID).Take(&existing).Error
		if err == nil {
			return User{}, ErrEmailTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("users: lookup failed: %w", err)
		}
		changes["email"] = email
	}
	if update.NewPassword != "" {
		if update.CurrentPassword == "" {
			return User{}, ErrWrongPassword
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(update.CurrentPassword)) != nil {
			return User{}, ErrWrongPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(update.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("users: password hash failed: %w", err)
		}
		changes["password_hash"] = string(hash)
	}
	if len(changes) == 0 {
		return User{}, ErrNoFields
	}
	changes["updated_at"] = s.clock().UTC()

	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(changes).Error; err != nil {
		return User{}, fmt.Errorf("users: update failed: %w", err)
	}
	return s.Get(ctx, userID)
}

// DeleteAccount removes the user and every todo the user owns, in one
// transaction, after a password confirmation.
func (s *Service) DeleteAccount(ctx context.Context, userID, password string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return ErrWrongPassword
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM todo_comments WHERE todo_id IN (SELECT id FROM todos WHERE owner_id = ?)", userID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM todo_collaborators WHERE todo_id IN (SELECT id FROM todos WHERE owner_id = ?)", userID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM todos WHERE owner_id = ?", userID).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", userID).Delete(&User{}).Error
	})
}

// ListResult is one admin listing page.
type ListResult struct {
	Users      []User
	TotalCount int64
	HasMore    bool
}

// List returns one page of accounts, newest first. The extra-row probe
// decides whether another page exists.
func (s *Service) List(ctx context.Context, page, limit int) (ListResult, error) {
	if page < 1 || limit < 1 {
		return ListResult{}, fmt.Errorf("users: invalid pagination page=%d limit=%d", page, limit)
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return ListResult{}, fmt.Errorf("users: count failed: %w", err)
	}

	var records []User
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit + 1).
		Find(&records).Error; err != nil {
		return ListResult{}, fmt.Errorf("users: list failed: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	return ListResult{Users: records, TotalCount: total, HasMore: hasMore}, nil
}

// SetRole updates the account role.
func (s *Service) SetRole(ctx context.Context, userID, role string) (User, error) {
	return s.adminUpdate(ctx, userID, map[string]interface{}{"role": role})
}

// SetSuspended toggles the suspension flag.
func (s *Service) SetSuspended(ctx context.Context, userID string, suspended bool) (User, error) {
	return s.adminUpdate(ctx, userID, map[string]interface{}{"suspended": suspended})
}

func (s *Service) adminUpdate(ctx context.Context, userID string, changes map[string]interface{}) (User, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return User{}, err
	}
	changes["updated_at"] = s.clock().UTC()
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(changes).Error; err != nil {
		return User{}, fmt.Errorf("users: update failed: %w", err)
	}
	return s.Get(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
