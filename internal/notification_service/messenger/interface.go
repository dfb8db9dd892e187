package messenger

import "context"

// Button is an inline button; Data is echoed back when it is pressed.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Row is shorthand for a keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// Channel is the outbound messaging transport.
type Channel interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, kb Keyboard) error
	// UpdateMenu edits a previously sent menu in place.
	UpdateMenu(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, caption, photoURL string) error
	// SendPhotoGroup sends an album with caption on the first photo.
	SendPhotoGroup(ctx context.Context, chatID int64, caption string, photoURLs []string) error
	// Acknowledge answers a button press. A non-empty alertText is shown as a popup.
	Acknowledge(ctx context.Context, eventID, alertText string) error
}
