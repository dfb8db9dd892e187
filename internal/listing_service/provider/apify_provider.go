package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

const maxErrorBody = 512

// maxBytesPerItem bounds how much of the response body each requested item may take.
const maxBytesPerItem = 64 << 10

// ApifyConfig configures the Idealista scraper actor.
type ApifyConfig struct {
	BaseURL      string
	ActorID      string
	APIKey       string
	LocationID   string
	MaxItems     int
	ActorTimeout time.Duration
}

// ApifyProvider runs the actor synchronously and maps its dataset items to listings.
type ApifyProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	cfg        ApifyConfig
}

func NewApifyProvider(logger *slog.Logger, cfg ApifyConfig, httpClient *http.Client) *ApifyProvider {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 100
	}
	if cfg.ActorTimeout <= 0 {
		cfg.ActorTimeout = 120 * time.Second
	}
	if httpClient == nil {
		// the actor timeout bounds the run; leave headroom for the response
		httpClient = &http.Client{Timeout: cfg.ActorTimeout + 10*time.Second}
	}
	return &ApifyProvider{
		logger:     logger.With("provider", "apify"),
		httpClient: httpClient,
		cfg:        cfg,
	}
}

func (p *ApifyProvider) GetName() string { return "apify" }

// apifyRunInput is the actor input. Prices and bedrooms are strings because the actor
// rejects numbers there.
type apifyRunInput struct {
	Operation     string   `json:"operation"`
	PropertyType  string   `json:"propertyType"`
	LocationID    string   `json:"locationId"`
	MinPrice      string   `json:"minPrice,omitempty"`
	MaxPrice      string   `json:"maxPrice,omitempty"`
	Bedrooms      []string `json:"bedrooms,omitempty"`
	MaxItems      int      `json:"maxItems"`
	IncludeImages bool     `json:"includeImages"`
}

type apifyItem struct {
	URL          string          `json:"url"`
	PropertyCode flexString      `json:"propertyCode"`
	Price        flexInt         `json:"price"`
	Rooms        flexInt         `json:"rooms"`
	District     string          `json:"district"`
	Neighborhood string          `json:"neighborhood"`
	Description  string          `json:"description"`
	Images       []apifyImageRef `json:"images"`
}

type apifyEnvelope struct {
	Status string      `json:"status"`
	Items  []apifyItem `json:"items"`
}

func (p *ApifyProvider) Search(ctx context.Context, criteria domain.Criteria) ([]domain.Listing, error) {
	body, err := json.Marshal(p.buildInput(criteria))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal apify input: %v", domain.ErrFetchFailure, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.runURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build apify request: %v", domain.ErrFetchFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	p.logger.DebugContext(ctx, "Running Apify actor", "actor_id", p.cfg.ActorID, "input", string(body))
	started := time.Now()

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.WarnContext(ctx, "Apify request failed", "error", err)
		return nil, fmt.Errorf("%w: apify request: %w", domain.ErrFetchFailure, err)
	}
	defer httpResp.Body.Close()

	limit := p.responseLimit()
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read apify response: %w", domain.ErrFetchFailure, err)
	}
	if int64(len(respBody)) > limit {
		p.logger.WarnContext(ctx, "Apify response too large", "limit_bytes", limit, "max_items", p.cfg.MaxItems)
		return nil, fmt.Errorf("%w: apify response exceeds %d bytes", domain.ErrFetchFailure, limit)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		p.logger.WarnContext(ctx, "Apify returned error status", "status_code", httpResp.StatusCode, "body", snippet)
		return nil, fmt.Errorf("%w: apify status %d", domain.ErrFetchFailure, httpResp.StatusCode)
	}

	items, err := decodeItems(respBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailure, err)
	}

	listings := make([]domain.Listing, 0, len(items))
	for _, item := range items {
		if l, ok := item.toListing(); ok {
			listings = append(listings, l)
		}
	}
	p.logger.InfoContext(ctx, "Apify run finished", "items", len(items), "listings", len(listings), "duration", time.Since(started))
	return listings, nil
}

func (p *ApifyProvider) buildInput(c domain.Criteria) apifyRunInput {
	in := apifyRunInput{
		Operation:     "rent",
		PropertyType:  "homes",
		LocationID:    p.cfg.LocationID,
		MaxItems:      p.cfg.MaxItems,
		IncludeImages: true,
	}
	if c.MinPrice != nil {
		in.MinPrice = strconv.Itoa(*c.MinPrice)
	}
	if c.MaxPrice != nil {
		in.MaxPrice = strconv.Itoa(*c.MaxPrice)
	}
	if c.NumRooms != nil {
		in.Bedrooms = []string{strconv.Itoa(*c.NumRooms)}
	}
	return in
}

func (p *ApifyProvider) runURL() string {
	q := url.Values{}
	q.Set("token", p.cfg.APIKey)
	q.Set("timeout", strconv.Itoa(int(p.cfg.ActorTimeout.Seconds())))
	return fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.ActorID), q.Encode())
}

// decodeItems accepts a bare dataset array or a run envelope carrying items.
func (p *ApifyProvider) responseLimit() int64 {
	return int64(p.cfg.MaxItems)*maxBytesPerItem + maxErrorBody
}

func decodeItems(body []byte) ([]apifyItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []apifyItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode apify items: %w", err)
		}
		return items, nil
	}

	var env apifyEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode apify envelope: %w", err)
	}
	if env.Status != "" && env.Status != "SUCCEEDED" {
		return nil, fmt.Errorf("apify run status %s", env.Status)
	}
	return env.Items, nil
}

func (it apifyItem) toListing() (domain.Listing, bool) {
	if strings.TrimSpace(it.URL) == "" {
		return domain.Listing{}, false
	}

	id := string(it.PropertyCode)
	if id == "" {
		id = idFromURL(it.URL)
	}

	district := it.District
	if district == "" {
		district = it.Neighborhood
	}

	photos := make([]string, 0, domain.MaxPhotos)
	for _, img := range it.Images {
		if len(photos) == domain.MaxPhotos {
			break
		}
		if img.URL != "" {
			photos = append(photos, img.URL)
		}
	}

	return domain.Listing{
		ExternalID:  id,
		URL:         it.URL,
		Price:       it.Price.ptr(),
		Rooms:       it.Rooms.ptr(),
		District:    district,
		Description: strings.TrimSpace(it.Description),
		PhotoURLs:   photos,
	}, true
}

// idFromURL takes the last all-digit path segment, e.g. /inmueble/12345678/.
// URLs without one get a stable name-based UUID.
func idFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := len(segments) - 1; i >= 0; i-- {
			if isDigits(segments[i]) {
				return segments[i]
			}
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(raw)).String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt decodes a JSON number or numeric string; anything else is left unset.
type flexInt struct {
	value int
	set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if json.Unmarshal(b, &s) != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if v, err := n.Float64(); err == nil {
		f.value, f.set = int(v), true
	}
	return nil
}

func (f flexInt) ptr() *int {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

// apifyImageRef decodes either a URL string or an object with a url field.
type apifyImageRef struct {
	URL string
}

func (r *apifyImageRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.URL = s
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	// unknown shapes are skipped rather than failing the whole item
	if err := json.Unmarshal(b, &obj); err == nil {
		r.URL = obj.URL
	}
	return nil
}
