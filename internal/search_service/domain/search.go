package domain

import (
	"time"

	"github.com/google/uuid"
)

// SearchStatus is the lifecycle state of a search.
type SearchStatus string

const (
	StatusActive  SearchStatus = "active"
	StatusPaused  SearchStatus = "paused"
	StatusDeleted SearchStatus = "deleted"
)

// User is a messaging-platform identity. Users are created on first contact and never deleted.
type User struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName prefers the first name, then the username.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return "there"
	}
}

// Search is a user's standing criteria plus lifecycle status.
type Search struct {
	ID            uuid.UUID    `json:"id"`
	UserID        int64        `json:"user_id"`
	ChatID        int64        `json:"chat_id"` // joined from the owner
	Status        SearchStatus `json:"status"`
	Criteria      Criteria     `json:"criteria"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	LastCheckedAt *time.Time   `json:"last_checked_at,omitempty"`
}

// NewSearch creates an active search owned by user.
func NewSearch(user *User, criteria Criteria) *Search {
	now := time.Now().UTC()
	return &Search{
		ID:        uuid.New(),
		UserID:    user.ID,
		ChatID:    user.ChatID,
		Status:    StatusActive,
		Criteria:  criteria.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Search) IsActive() bool { return s.Status == StatusActive }
