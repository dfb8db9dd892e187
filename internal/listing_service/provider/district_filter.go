package provider

import (
	"strings"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// FilterByDistricts keeps listings whose district contains one of the requested names,
// case-insensitively. No requested districts means no filtering. Listings without a
// district never match a non-empty filter.
func FilterByDistricts(listings []domain.Listing, districts []string) []domain.Listing {
	if len(districts) == 0 {
		return listings
	}

	wanted := make([]string, 0, len(districts))
	for _, d := range districts {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			wanted = append(wanted, d)
		}
	}
	if len(wanted) == 0 {
		return listings
	}

	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		district := strings.ToLower(l.District)
		if district == "" {
			continue
		}
		for _, w := range wanted {
			if strings.Contains(district, w) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
