package domain

import (
	"time"

	"github.com/google/uuid"
)

// Todo is a task owned by exactly one user. Listings sort by priority
// (higher first), then creation time (newest first).
type Todo struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description string
	Completed   bool
	DueDate     *time.Time
	Priority    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
