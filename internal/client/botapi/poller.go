package botapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
)

type apiUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type apiChat struct {
	ID int64 `json:"id"`
}

type apiMessage struct {
	MessageID int64    `json:"message_id"`
	From      *apiUser `json:"from"`
	Chat      apiChat  `json:"chat"`
	Text      string   `json:"text"`
}

type apiCallback struct {
	ID      string      `json:"id"`
	From    apiUser     `json:"from"`
	Message *apiMessage `json:"message"`
	Data    string      `json:"data"`
}

type apiUpdate struct {
	UpdateID      int64        `json:"update_id"`
	Message       *apiMessage  `json:"message"`
	CallbackQuery *apiCallback `json:"callback_query"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long-polls for updates after offset
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]*bot.Update, int64, error) {
	var raw []apiUpdate
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(c.pollTimeout / time.Second),
		AllowedUpdates: []string{"message", "callback_query"},
	}
	if err := c.call(ctx, "getUpdates", req, &raw); err != nil {
		return nil, offset, err
	}

	updates := make([]*bot.Update, 0, len(raw))
	for _, u := range raw {
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
		if upd := convert(u); upd != nil {
			updates = append(updates, upd)
		}
	}
	return updates, offset, nil
}

func convert(u apiUpdate) *bot.Update {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		upd := &bot.Update{
			ID:           u.UpdateID,
			UserID:       strconv.FormatInt(cb.From.ID, 10),
			Username:     cb.From.Username,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.Message != nil {
			upd.ChatID = strconv.FormatInt(cb.Message.Chat.ID, 10)
		} else {
			upd.ChatID = upd.UserID
		}
		return upd
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		return &bot.Update{
			ID:       u.UpdateID,
			ChatID:   strconv.FormatInt(m.Chat.ID, 10),
			UserID:   strconv.FormatInt(m.From.ID, 10),
			Username: m.From.Username,
			Text:     m.Text,
		}
	}
	return nil
}

// Run polls until ctx is cancelled, passing each update to handle.
// Transient errors are retried; a rejected credential ends the loop.
func (c *Client) Run(ctx context.Context, handle func(*bot.Update)) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, next, err := c.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		offset = next
		for _, upd := range updates {
			handle(upd)
		}
	}
}
