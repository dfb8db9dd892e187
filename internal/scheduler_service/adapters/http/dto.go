package http

import (
	"time"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// ListActiveSearchesQuery is bound from the query string of GET /admin/searches/active.
type ListActiveSearchesQuery struct {
	Limit int `validate:"gte=1,lte=500"`
}

type SearchDTO struct {
	ID            string          `json:"id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	Criteria      domain.Criteria `json:"criteria"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	LastCheckedAt *time.Time      `json:"last_checked_at,omitempty"`
}

type ListActiveSearchesResponseDTO struct {
	Searches []SearchDTO `json:"searches"`
	Count    int         `json:"count"`
}

type TriggerPassResponseDTO struct {
	Status string `json:"status"`
}

type HealthResponseDTO struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Pass     string `json:"pass"`
}

type ErrorResponseDTO struct {
	Error string `json:"error"`
}

func toSearchDTO(s *domain.Search) SearchDTO {
	return SearchDTO{
		ID:            s.ID.String(),
		UserID:        s.UserID,
		Status:        string(s.Status),
		Criteria:      s.Criteria,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		LastCheckedAt: s.LastCheckedAt,
	}
}
