package domain

import (
	"github.com/google/uuid"

	searchdomain "github.com/rentwatch/golang_services/internal/search_service/domain"
)

// Session is the in-memory wizard state of one user. It is owned by a single goroutine
// and never persisted.
type Session struct {
	UserID int64
	ChatID int64
	State  State
	Draft  searchdomain.Criteria
	// EditingSearchID is set while an edit flow is open.
	EditingSearchID uuid.UUID

	User      searchdomain.User
	UserKnown bool
}

func NewSession(userID int64) *Session {
	return &Session{UserID: userID, State: StateIdle}
}

// Reset discards the draft and returns to Idle. The user record is kept.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Draft = searchdomain.Criteria{}
	s.EditingSearchID = uuid.Nil
}
