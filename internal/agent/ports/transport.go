package ports

import "context"

// KeyboardButton is one inline button; Data comes back on the callback.
type KeyboardButton struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is rows of inline buttons.
type Keyboard [][]KeyboardButton

// Outbound is the delivery side of a chat transport. Implementations handle
// formatting normalization and length splitting; callers pass plain text.
type Outbound interface {
	// SendText delivers a message to the agent's configured chat
	SendText(ctx context.Context, text string) error

	// SendKeyboard delivers a message with inline buttons and returns the
	// transport message id, used later to edit the prompt in place
	SendKeyboard(ctx context.Context, text string, keyboard Keyboard) (string, error)

	// EditText replaces the text of a previously sent message
	EditText(ctx context.Context, messageID, text string) error
}

// InboundKind distinguishes transport update payloads.
type InboundKind string

const (
	InboundText     InboundKind = "text"
	InboundCallback InboundKind = "callback"
	InboundLocation InboundKind = "location"
	InboundVoice    InboundKind = "voice"
	InboundPhoto    InboundKind = "photo"
	InboundDocument InboundKind = "document"
)

// InboundMessage is one normalized transport update.
type InboundMessage struct {
	Kind         InboundKind
	ChatID       string
	Text         string
	CallbackID   string
	CallbackData string
	MessageID    string
	Latitude     float64
	Longitude    float64
	FileID       string
	FileName     string
	MimeType     string
}
