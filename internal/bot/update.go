package bot

import (
	"context"
	"strings"
)

// Update is one inbound event from the chat transport
type Update struct {
	ID           int64
	ChatID       string
	UserID       string
	Username     string
	Text         string
	CallbackID   string
	CallbackData string
}

// IsCallback reports whether the update is a button press
func (u *Update) IsCallback() bool {
	return u.CallbackID != ""
}

// Input returns the callback data for button presses and the text otherwise
func (u *Update) Input() string {
	if u.IsCallback() {
		return u.CallbackData
	}
	return strings.TrimSpace(u.Text)
}

// Command splits "/name@bot arg1 arg2" into its name and arguments
func (u *Update) Command() (string, []string, bool) {
	if u.IsCallback() {
		return "", nil, false
	}
	fields := strings.Fields(u.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) == 1 {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:], true
}

// Button is one inline keyboard button
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is an inline keyboard attached to a message
type Keyboard struct {
	Rows [][]Button
}

// NewKeyboard builds a keyboard from rows
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row is a convenience for one keyboard row
func Row(buttons ...Button) []Button {
	return buttons
}

// Sender delivers outbound messages on the transport
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, kb *Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
