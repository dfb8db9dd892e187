package domain

import "time"

// EventKind is the closed set of inputs the conversation engine understands.
type EventKind int

const (
	KindText EventKind = iota

	KindStart
	KindHelp
	KindMySearch
	KindUnknownCommand
	KindCancel

	KindCreateSearch
	KindSelectRooms
	KindToggleDistrict
	KindSelectAllDistricts
	KindDistrictsDone

	KindPauseSearch
	KindResumeSearch
	KindEditSearch
	KindEditPrice
	KindEditRooms
	KindEditDistricts
	KindDeleteSearch
	KindConfirmDelete
	KindCancelDelete
	KindBackToMain

	// NumEventKinds must stay last.
	NumEventKinds
)

var kindNames = [NumEventKinds]string{
	KindText:               "text",
	KindStart:              "start",
	KindHelp:               "help",
	KindMySearch:           "my_search",
	KindUnknownCommand:     "unknown_command",
	KindCancel:             "cancel",
	KindCreateSearch:       "create_search",
	KindSelectRooms:        "select_rooms",
	KindToggleDistrict:     "toggle_district",
	KindSelectAllDistricts: "select_all_districts",
	KindDistrictsDone:      "districts_done",
	KindPauseSearch:        "pause_search",
	KindResumeSearch:       "resume_search",
	KindEditSearch:         "edit_search",
	KindEditPrice:          "edit_price",
	KindEditRooms:          "edit_rooms",
	KindEditDistricts:      "edit_districts",
	KindDeleteSearch:       "delete_search",
	KindConfirmDelete:      "confirm_delete",
	KindCancelDelete:       "cancel_delete",
	KindBackToMain:         "back_to_main",
}

func (k EventKind) String() string {
	if k >= 0 && k < NumEventKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether k is one of the declared kinds.
func (k EventKind) Valid() bool { return k >= 0 && k < NumEventKinds }

// Event is one user input, already decoded from the messaging platform.
type Event struct {
	Kind     EventKind
	UserID   int64
	ChatID   int64
	Text     string
	Rooms    int
	District string

	// EventID identifies a button press that must be acknowledged; empty for messages.
	EventID string
	// MessageID is the message carrying the pressed keyboard, 0 when unknown.
	MessageID int

	Username  string
	FirstName string
	LastName  string

	ReceivedAt time.Time
}

// IsCallback reports whether the event came from a button press.
func (e Event) IsCallback() bool { return e.EventID != "" }

// CommandKind maps a bot command name (without the slash) to its kind.
func CommandKind(name string) EventKind {
	switch name {
	case "start":
		return KindStart
	case "help":
		return KindHelp
	case "mysearch":
		return KindMySearch
	case "cancel":
		return KindCancel
	default:
		return KindUnknownCommand
	}
}
