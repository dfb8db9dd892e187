package domain

// State is the wizard step a session is in.
type State int

const (
	StateIdle State = iota
	StateAwaitingMinPrice
	StateAwaitingMaxPrice
	StateAwaitingRoomCount
	StateAwaitingDistricts
	StateEditingMinPrice
	StateEditingMaxPrice
	StateEditingRoomCount
	StateEditingDistricts
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateAwaitingMinPrice:  "awaiting_min_price",
	StateAwaitingMaxPrice:  "awaiting_max_price",
	StateAwaitingRoomCount: "awaiting_room_count",
	StateAwaitingDistricts: "awaiting_districts",
	StateEditingMinPrice:   "editing_min_price",
	StateEditingMaxPrice:   "editing_max_price",
	StateEditingRoomCount:  "editing_room_count",
	StateEditingDistricts:  "editing_districts",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// IsEditing reports whether the session edits an existing search.
func (s State) IsEditing() bool {
	return s >= StateEditingMinPrice && s <= StateEditingDistricts
}
