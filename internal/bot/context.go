package bot

import (
	"context"

	"github.com/prohmpiriya/botfleet/internal/domain"
)

// SaveFunc persists the session of the current update
type SaveFunc func(ctx context.Context, sess *domain.Session)

// Context carries one update through the middleware pipeline
type Context struct {
	ctx     context.Context
	Update  *Update
	sender  Sender
	Session *domain.Session
	save    SaveFunc
	args    []string
}

// NewContext wraps an update for dispatch
func NewContext(ctx context.Context, upd *Update, sender Sender) *Context {
	return &Context{ctx: ctx, Update: upd, sender: sender}
}

// Context returns the request context
func (c *Context) Context() context.Context {
	return c.ctx
}

// WithContext replaces the request context
func (c *Context) WithContext(ctx context.Context) {
	c.ctx = ctx
}

// UserID returns the sender of the update
func (c *Context) UserID() string {
	return c.Update.UserID
}

// Args returns the command arguments, if the update was a command
func (c *Context) Args() []string {
	return c.args
}

// Reply sends text to the chat of the update
func (c *Context) Reply(text string) error {
	return c.sender.SendMessage(c.ctx, c.Update.ChatID, text, nil)
}

// ReplyWithKeyboard sends text with an inline keyboard
func (c *Context) ReplyWithKeyboard(text string, kb *Keyboard) error {
	return c.sender.SendMessage(c.ctx, c.Update.ChatID, text, kb)
}

// AnswerCallback acknowledges a button press; no-op for text updates
func (c *Context) AnswerCallback(text string) error {
	if !c.Update.IsCallback() {
		return nil
	}
	return c.sender.AnswerCallback(c.ctx, c.Update.CallbackID, text)
}

// SetSession injects the loaded session and its save closure
func (c *Context) SetSession(sess *domain.Session, save SaveFunc) {
	c.Session = sess
	c.save = save
}

// Save persists the current session. No-op without an injected session.
func (c *Context) Save() {
	if c.save == nil || c.Session == nil {
		return
	}
	c.save(c.ctx, c.Session)
}
