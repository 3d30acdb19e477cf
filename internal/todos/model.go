package todos

import "time"

// StatusFilter narrows a todo listing.
type StatusFilter string

const (
	// StatusAll disables completion filtering.
	StatusAll StatusFilter = "all"
	// StatusActive selects incomplete todos.
	StatusActive StatusFilter = "active"
	// StatusCompleted selects completed todos.
	StatusCompleted StatusFilter = "completed"
)

// ParseStatusFilter maps raw query input onto a filter; empty means all.
func ParseStatusFilter(raw string) StatusFilter {
	switch StatusFilter(raw) {
	case StatusActive:
		return StatusActive
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusAll
	}
}

// Todo is the collaborative resource at the center of the service.
// OwnerID is set at creation and never changes.
type Todo struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index" json:"owner_id"`
	Title     string    `gorm:"column:title;size:320;not null" json:"title"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Completed bool      `gorm:"column:completed;not null;default:false" json:"completed"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Todo) TableName() string {
	return "todos"
}

// Collaborator grants a non-owner access to a todo's data and events.
type Collaborator struct {
	TodoID    string    `gorm:"column:todo_id;primaryKey;size:190;not null" json:"todo_id"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "todo_collaborators"
}

// Comment is a discussion entry on a todo.
type Comment struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TodoID    string    `gorm:"column:todo_id;size:190;not null;index" json:"todo_id"`
	UserID    string    `gorm:"column:user_id;size:190;not null" json:"user_id"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "todo_comments"
}
