package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCallback is returned for button payloads this bot never produced.
var ErrUnknownCallback = errors.New("unknown callback")

var callbackActions = map[EventKind]string{
	KindHelp:               "HELP",
	KindMySearch:           "MY_SEARCH",
	KindCancel:             "CANCEL",
	KindCreateSearch:       "CREATE_SEARCH",
	KindSelectRooms:        "SET_ROOMS",
	KindToggleDistrict:     "TOGGLE_DISTRICT",
	KindSelectAllDistricts: "DISTRICTS_ALL",
	KindDistrictsDone:      "DISTRICTS_DONE",
	KindPauseSearch:        "PAUSE_SEARCH",
	KindResumeSearch:       "RESUME_SEARCH",
	KindEditSearch:         "EDIT_SEARCH",
	KindEditPrice:          "EDIT_PRICE",
	KindEditRooms:          "EDIT_ROOMS",
	KindEditDistricts:      "EDIT_DISTRICTS",
	KindDeleteSearch:       "DELETE_SEARCH",
	KindConfirmDelete:      "CONFIRM_DELETE",
	KindCancelDelete:       "CANCEL_DELETE",
	KindBackToMain:         "BACK_TO_MAIN",
}

var actionKinds = func() map[string]EventKind {
	m := make(map[string]EventKind, len(callbackActions))
	for k, a := range callbackActions {
		m[a] = k
	}
	return m
}()

// CallbackData encodes a button payload as ACTION or ACTION:ARG.
func CallbackData(kind EventKind, arg string) string {
	action, ok := callbackActions[kind]
	if !ok {
		panic(fmt.Sprintf("event kind %s has no callback action", kind))
	}
	if arg == "" {
		return action
	}
	return action + ":" + arg
}

// ParseCallback decodes a button payload into an event carrying its kind and argument.
func ParseCallback(data string) (Event, error) {
	action, arg, _ := strings.Cut(data, ":")
	kind, ok := actionKinds[action]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
	}

	ev := Event{Kind: kind}
	switch kind {
	case KindSelectRooms:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Event{}, fmt.Errorf("%w: bad room count %q", ErrUnknownCallback, arg)
		}
		ev.Rooms = n
	case KindToggleDistrict:
		if arg == "" {
			return Event{}, fmt.Errorf("%w: missing district", ErrUnknownCallback)
		}
		ev.District = arg
	}
	return ev, nil
}
