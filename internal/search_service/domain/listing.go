package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxPhotos caps the photos carried per listing.
const MaxPhotos = 3

// Listing is one externally sourced rental candidate.
type Listing struct {
	ExternalID  string   `json:"external_id"`
	URL         string   `json:"url"`
	Price       *int     `json:"price,omitempty"`
	Rooms       *int     `json:"rooms,omitempty"`
	District    string   `json:"district,omitempty"`
	Description string   `json:"description,omitempty"`
	PhotoURLs   []string `json:"photo_urls,omitempty"`
}

// SentListing is the ledger snapshot of a confirmed delivery.
type SentListing struct {
	ID          uuid.UUID `json:"id"`
	SearchID    uuid.UUID `json:"search_id"`
	ExternalID  string    `json:"external_id"`
	URL         string    `json:"url"`
	Price       *int      `json:"price,omitempty"`
	Rooms       *int      `json:"rooms,omitempty"`
	District    string    `json:"district,omitempty"`
	Description string    `json:"description,omitempty"`
	PhotoURLs   []string  `json:"photo_urls,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// NewSentListing snapshots l for searchID.
func NewSentListing(searchID uuid.UUID, l Listing, sentAt time.Time) *SentListing {
	return &SentListing{
		ID:          uuid.New(),
		SearchID:    searchID,
		ExternalID:  l.ExternalID,
		URL:         l.URL,
		Price:       cloneInt(l.Price),
		Rooms:       cloneInt(l.Rooms),
		District:    l.District,
		Description: l.Description,
		PhotoURLs:   l.PhotoURLs,
		SentAt:      sentAt,
	}
}

// DispatchResult splits a batch by delivery outcome.
type DispatchResult struct {
	Confirmed []Listing
	Failed    []Listing
}

// CheckMode distinguishes the immediate post-creation pass from scheduled ones.
type CheckMode int

const (
	CheckScheduled CheckMode = iota
	CheckImmediate
)

func (m CheckMode) String() string {
	if m == CheckImmediate {
		return "immediate"
	}
	return "scheduled"
}

// CheckOutcome summarises one fetch-dedup-dispatch run for a search.
type CheckOutcome struct {
	Fetched     int `json:"fetched"`
	Matched     int `json:"matched"`
	AlreadySent int `json:"already_sent"`
	New         int `json:"new"`
	Delivered   int `json:"delivered"`
	Failed      int `json:"failed"`
	Recorded    int `json:"recorded"`
	// Skipped is set when another check of the same search was already running.
	Skipped bool `json:"skipped,omitempty"`
}
