package app

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

const maxDescription = 300

var printer = message.NewPrinter(language.English)

// FormatPrice renders 1200 as "1,200".
func FormatPrice(v int) string {
	return printer.Sprintf("%d", v)
}

// FormatListing renders the notification body for a listing.
func FormatListing(l domain.Listing) string {
	var b strings.Builder
	b.WriteString("🏠 New apartment found!\n\n")
	if l.Price != nil {
		fmt.Fprintf(&b, "💰 Price: %s EUR/month\n", FormatPrice(*l.Price))
	}
	if l.Rooms != nil {
		fmt.Fprintf(&b, "🛏 Rooms: %s\n", FormatRooms(*l.Rooms))
	}
	if l.District != "" {
		fmt.Fprintf(&b, "📍 District: %s\n", l.District)
	}
	b.WriteString("\n")
	if desc := truncate(strings.TrimSpace(l.Description), maxDescription); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "🔗 %s", l.URL)
	return b.String()
}

// FormatRooms renders the top room bucket as "5+".
func FormatRooms(n int) string {
	if n >= domain.MaxRooms {
		return fmt.Sprintf("%d+", domain.MaxRooms)
	}
	return fmt.Sprintf("%d", n)
}

// Apartments renders "1 apartment" / "3 apartments".
func Apartments(n int) string {
	if n == 1 {
		return "1 apartment"
	}
	return fmt.Sprintf("%d apartments", n)
}

// NewListingsHeadline is sent before a batch of fresh listings.
func NewListingsHeadline(mode domain.CheckMode, n int) string {
	if mode == domain.CheckImmediate {
		return fmt.Sprintf("Found %s:", Apartments(n))
	}
	return fmt.Sprintf("🔔 New listings!\n\nFound %s for your search:", Apartments(n))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
