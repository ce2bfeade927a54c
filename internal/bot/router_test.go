package bot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/bot/mocks"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_Command(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/start", "start", []string{}, true},
		{"/Quota 4 20", "quota", []string{"4", "20"}, true},
		{"/menu@fleet_bot", "menu", []string{}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
		{"", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			upd := &bot.Update{Text: tt.text}
			name, args, ok := upd.Command()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			if tt.wantOK {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}

	cb := &bot.Update{CallbackID: "cb", CallbackData: "/start", Text: "/start"}
	_, _, ok := cb.Command()
	assert.False(t, ok)
	assert.Equal(t, "/start", cb.Input())
}

func TestRouter_Dispatch(t *testing.T) {
	r := bot.NewRouter()
	var got []string

	r.Command("start", func(c *bot.Context) error {
		got = append(got, "start")
		return c.Reply("welcome")
	})
	r.Command("quota", func(c *bot.Context) error {
		got = append(got, "quota:"+c.Args()[0])
		return nil
	})
	r.Action("t:", func(c *bot.Context) error {
		got = append(got, "t")
		return nil
	})
	r.Action("t:view:", func(c *bot.Context) error {
		got = append(got, "view:"+c.Args()[0])
		return c.AnswerCallback("")
	})
	r.OnText(func(c *bot.Context) error {
		got = append(got, "text:"+c.Update.Text)
		return nil
	})
	r.OnUnknown(func(c *bot.Context) error {
		got = append(got, "unknown")
		return nil
	})

	sender := &mocks.MockSender{}
	ctx := context.Background()
	for _, upd := range []*bot.Update{
		{ChatID: "1", UserID: "1", Text: "/start"},
		{ChatID: "1", UserID: "1", Text: "/quota 7"},
		{ChatID: "1", UserID: "1", CallbackID: "a", CallbackData: "t:view:42"},
		{ChatID: "1", UserID: "1", CallbackID: "b", CallbackData: "t:other"},
		{ChatID: "1", UserID: "1", CallbackID: "c", CallbackData: "zzz"},
		{ChatID: "1", UserID: "1", Text: "/nope"},
		{ChatID: "1", UserID: "1", Text: "hi there"},
	} {
		require.NoError(t, r.Dispatch(ctx, upd, sender))
	}

	assert.Equal(t, []string{"start", "quota:7", "view:42", "t", "unknown", "unknown", "text:hi there"}, got)
	assert.Equal(t, []string{"welcome"}, sender.Texts())
	assert.Equal(t, []string{"a"}, sender.Answered)
	assert.True(t, r.HasCommand("quota"))
	assert.False(t, r.HasCommand("nope"))
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	r := bot.NewRouter()
	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(c *bot.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}
	r.Use(mw("first"), mw("second"))
	r.OnText(func(c *bot.Context) error {
		order = append(order, "handler")
		return nil
	})

	require.NoError(t, r.Dispatch(context.Background(), &bot.Update{Text: "x"}, &mocks.MockSender{}))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRecover_ConvertsPanic(t *testing.T) {
	r := bot.NewRouter()
	r.Use(bot.Recover(logger.Nop()), bot.Logging(logger.Nop()))
	r.OnText(func(c *bot.Context) error { panic("boom") })

	err := r.Dispatch(context.Background(), &bot.Update{Text: "x"}, &mocks.MockSender{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestContext_SaveUsesInjectedClosure(t *testing.T) {
	c := bot.NewContext(context.Background(), &bot.Update{UserID: "9"}, &mocks.MockSender{})
	assert.NotPanics(t, c.Save)

	var saved *domain.Session
	sess := domain.NewSession()
	c.SetSession(sess, func(ctx context.Context, s *domain.Session) { saved = s })
	c.Session.Stage = domain.StageReady
	c.Save()
	require.NotNil(t, saved)
	assert.Equal(t, domain.StageReady, saved.Stage)
}

func TestContext_ReplyPropagatesSendError(t *testing.T) {
	sender := &mocks.MockSender{SendErr: errors.New("429")}
	c := bot.NewContext(context.Background(), &bot.Update{ChatID: "1"}, sender)
	assert.Error(t, c.Reply("x"))
	assert.NoError(t, c.AnswerCallback("ignored for text updates"))
}
