package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskforge-io/taskforge/internal/content"
	"github.com/taskforge-io/taskforge/internal/notifications"
	"github.com/taskforge-io/taskforge/internal/pages"
	"github.com/taskforge-io/taskforge/internal/realtime"
	"github.com/taskforge-io/taskforge/internal/todos"
	"github.com/taskforge-io/taskforge/internal/users"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&todos.Todo{},
		&todos.Collaborator{},
		&todos.Comment{},
		&notifications.Notification{},
		&realtime.Connection{},
		&content.Section{},
		&pages.Page{},
		&pages.PageSection{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := clearStaleConnections(db); err != nil && logger != nil {
		logger.Warn("stale connection sweep failed", zap.Error(err))
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// clearStaleConnections removes connection rows left behind by a previous
// process. Connection rows describe live transport sessions and none
// survive a restart.
func clearStaleConnections(db *gorm.DB) error {
	return db.Exec("DELETE FROM connections;").Error
}
