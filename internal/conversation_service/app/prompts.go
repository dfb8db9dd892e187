package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/rentwatch/golang_services/internal/conversation_service/domain"
	notifyapp "github.com/rentwatch/golang_services/internal/notification_service/app"
	"github.com/rentwatch/golang_services/internal/notification_service/messenger"
	searchdomain "github.com/rentwatch/golang_services/internal/search_service/domain"
)

const (
	msgUsage = "Use the commands to control the bot:\n" +
		"/start - Main menu\n" +
		"/mysearch - My search\n" +
		"/help - Help"
	msgUnknownCommand     = "Unknown command. Use /help to see the available commands."
	msgNothingToCancel    = "Nothing to cancel."
	msgCancelled          = "❌ Cancelled."
	msgStaleMenu          = "⌛ This menu is no longer active. Use /start to begin again."
	msgUseButtons         = "Please use the buttons above, or /cancel to stop."
	msgInvalidNumber      = "❌ Invalid format. Enter a number (for example, %d):"
	msgNegativePrice      = "❌ Price cannot be negative. Enter the %s price (EUR):"
	msgMaxNotAboveMin     = "❌ The maximum price must be greater than the minimum (%s EUR).\nEnter the maximum price:"
	msgEnterMinPrice      = "Let's create a search!\n\nEnter the minimum price (EUR):"
	msgEnterMaxPrice      = "Enter the maximum price (EUR):"
	msgEnterNewMaxPrice   = "Enter the new maximum price (EUR):"
	msgChooseRooms        = "How many rooms are you looking for?"
	msgInvalidRooms       = "❌ Choose between 1 and 5 rooms."
	msgChooseDistricts    = "Select districts (several allowed):"
	msgUnknownDistrict    = "❌ Unknown district."
	msgNeedDistrict       = "❌ Select at least one district or press \"All districts\"."
	msgAlreadyActive      = "❌ You already have an active search.\n\nUse /mysearch to manage it."
	msgLimitExceeded      = "❌ You can only have one active search. Pause or delete it first."
	msgSearchCreated      = "✅ Search created!\n\n🔍 Looking for current offers..."
	msgNoSearch           = "You have no search yet.\n\nCreate one to get notified about new apartments!"
	msgNoActiveSearch     = "❌ You have no active search."
	msgNoPausedSearch     = "❌ You have no paused search to resume."
	msgSearchGone         = "❌ This search no longer exists."
	msgPaused             = "⏸ Search paused.\n\nNotifications are stopped. You can resume at any time."
	msgEditWhat           = "What would you like to change?"
	msgConfirmDelete      = "⚠️ Are you sure you want to delete the search?\n\nThis cannot be undone."
	msgDeleted            = "🗑 Search deleted.\n\nYou can create a new search at any time."
	msgDeleteCancelled    = "Deletion cancelled."
	msgMainMenu           = "Main menu:"
	msgChangesSaved       = "\n\nChanges saved!"
	msgSomethingWentWrong = "❌ Something went wrong. Please start again."
	alertError            = "❌ Something went wrong"
)

func welcomeText(name string, interval time.Duration) string {
	return fmt.Sprintf("Welcome to RentWatch! 🏠\n\n"+
		"Hi, %s! I will help you find an apartment to rent in Valencia.\n\n"+
		"What I can do:\n"+
		"✅ Search apartments by your criteria (price, rooms, districts)\n"+
		"✅ Notify you about new listings (every %s)\n"+
		"✅ Never send the same listing twice\n\n"+
		"Choose an action:", name, humanInterval(interval))
}

func helpText(interval time.Duration) string {
	every := humanInterval(interval)
	return "❓ Help\n\n" +
		"Commands:\n" +
		"/start - Start the bot\n" +
		"/mysearch - Show my search\n" +
		"/cancel - Cancel the current step\n" +
		"/help - Show this help\n\n" +
		"How it works:\n" +
		"1. Create a search with your criteria\n" +
		"2. Get the current offers right away\n" +
		"3. The bot sends new ones every " + every + "\n" +
		"4. Manage your search: pause, edit, delete\n\n" +
		"Limits:\n" +
		"• One active search per user\n" +
		"• Valencia only"
}

func resumedText(interval time.Duration) string {
	return "▶️ Search resumed!\n\nChecking for new offers every " + humanInterval(interval) + " again."
}

func keepCheckingText(interval time.Duration) string {
	return "✅ I will check for new offers every " + humanInterval(interval) + "."
}

func nothingFoundText(interval time.Duration) string {
	return "Unfortunately there are no matching apartments yet.\n\n" +
		"I will check for new offers every " + humanInterval(interval) + " and notify you."
}

func fetchFailedText(interval time.Duration) string {
	return "❌ Could not fetch listings right now. I will try again within " + humanInterval(interval) + "."
}

func humanInterval(d time.Duration) string {
	switch {
	case d <= 0:
		return "a while"
	case d%time.Hour == 0:
		return pluralize(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return fmt.Sprintf("%d min", int(d/time.Minute))
	default:
		return d.String()
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// PriceRange renders "from X", "up to Y", "X – Y" or "any".
func PriceRange(c searchdomain.Criteria) string {
	switch {
	case c.MinPrice != nil && c.MaxPrice != nil:
		return fmt.Sprintf("%s – %s EUR", notifyapp.FormatPrice(*c.MinPrice), notifyapp.FormatPrice(*c.MaxPrice))
	case c.MinPrice != nil:
		return fmt.Sprintf("from %s EUR", notifyapp.FormatPrice(*c.MinPrice))
	case c.MaxPrice != nil:
		return fmt.Sprintf("up to %s EUR", notifyapp.FormatPrice(*c.MaxPrice))
	default:
		return "any"
	}
}

func roomsText(c searchdomain.Criteria) string {
	if c.NumRooms == nil {
		return "any"
	}
	return notifyapp.FormatRooms(*c.NumRooms)
}

func districtsText(c searchdomain.Criteria) string {
	if len(c.Districts) == 0 {
		return "All districts"
	}
	return strings.Join(c.Districts, ", ")
}

// RelativeTime renders how long ago t was, or "never".
func RelativeTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d d ago", int(d/(24*time.Hour)))
	}
}

func searchInfoText(s *searchdomain.Search, sent int, now time.Time) string {
	status := "✅ Active"
	if s.Status == searchdomain.StatusPaused {
		status = "⏸ Paused"
	}
	return fmt.Sprintf("🔍 Your search\n\n"+
		"Status: %s\n"+
		"💰 Price: %s\n"+
		"🛏 Rooms: %s\n"+
		"📍 Districts: %s\n"+
		"📨 Listings sent: %d\n"+
		"🕐 Last check: %s",
		status, PriceRange(s.Criteria), roomsText(s.Criteria), districtsText(s.Criteria),
		sent, RelativeTime(s.LastCheckedAt, now))
}

func button(text string, kind domain.EventKind, arg string) messenger.Button {
	return messenger.Button{Text: text, Data: domain.CallbackData(kind, arg)}
}

func mainMenuKeyboard() messenger.Keyboard {
	return messenger.Keyboard{
		messenger.Row(button("🔍 Create search", domain.KindCreateSearch, "")),
		messenger.Row(button("📋 My search", domain.KindMySearch, ""), button("❓ Help", domain.KindHelp, "")),
	}
}

func managementKeyboard(active bool) messenger.Keyboard {
	toggle := button("⏸ Pause", domain.KindPauseSearch, "")
	if !active {
		toggle = button("▶️ Resume", domain.KindResumeSearch, "")
	}
	return messenger.Keyboard{
		messenger.Row(toggle, button("✏️ Edit", domain.KindEditSearch, "")),
		messenger.Row(button("🗑 Delete", domain.KindDeleteSearch, ""), button("⬅️ Back", domain.KindBackToMain, "")),
	}
}

func editKeyboard() messenger.Keyboard {
	return messenger.Keyboard{
		messenger.Row(button("💰 Price", domain.KindEditPrice, ""), button("🛏 Rooms", domain.KindEditRooms, "")),
		messenger.Row(button("📍 Districts", domain.KindEditDistricts, "")),
		messenger.Row(button("❌ Cancel", domain.KindCancel, "")),
	}
}

func deleteKeyboard() messenger.Keyboard {
	return messenger.Keyboard{
		messenger.Row(button("✅ Yes, delete", domain.KindConfirmDelete, ""), button("❌ No", domain.KindCancelDelete, "")),
	}
}

func roomsKeyboard(withCancel bool) messenger.Keyboard {
	kb := messenger.Keyboard{
		messenger.Row(
			button("1 room", domain.KindSelectRooms, "1"),
			button("2 rooms", domain.KindSelectRooms, "2"),
			button("3 rooms", domain.KindSelectRooms, "3"),
		),
		messenger.Row(
			button("4 rooms", domain.KindSelectRooms, "4"),
			button("5+ rooms", domain.KindSelectRooms, "5"),
		),
	}
	if withCancel {
		kb = append(kb, messenger.Row(button("❌ Cancel", domain.KindCancel, "")))
	}
	return kb
}

// districtKeyboard lays the catalog out two per row and marks selected districts.
func districtKeyboard(catalog []string, draft searchdomain.Criteria, withCancel bool) messenger.Keyboard {
	var kb messenger.Keyboard
	for i := 0; i < len(catalog); i += 2 {
		var row []messenger.Button
		for _, d := range catalog[i:min(i+2, len(catalog))] {
			label := d
			if draft.HasDistrict(d) {
				label = "✅ " + d
			}
			row = append(row, button(label, domain.KindToggleDistrict, d))
		}
		kb = append(kb, row)
	}
	last := messenger.Row(
		button("🌍 All districts", domain.KindSelectAllDistricts, ""),
		button("✅ Done", domain.KindDistrictsDone, ""),
	)
	if withCancel {
		last = append(last, button("❌ Cancel", domain.KindCancel, ""))
	}
	return append(kb, last)
}
