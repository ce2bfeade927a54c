package wizard

import (
	"errors"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"go.uber.org/zap"
)

// FailureReply is sent when a flow fails to commit
const FailureReply = "Sorry, that could not be saved. Please try again later."

// Middleware routes wizard-owned input to the engine. Slash commands and
// foreign button presses abort the wizard and continue to the router.
func (e *Engine) Middleware(log *logger.Logger) bot.Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(c *bot.Context) error {
			sess := c.Session
			if sess == nil || sess.Stage.Idle() {
				return next(c)
			}

			input := c.Update.Input()
			if interrupts(c.Update, input) && e.Owns(sess.Stage) {
				e.Abort(sess)
				c.Save()
				return next(c)
			}

			res, err := e.Handle(c.Context(), sess, input)
			if errors.Is(err, ErrUnknownStage) {
				log.WithContext(c.Context()).Warn("Resetting unknown wizard stage", zap.String("stage", sess.Stage.String()))
				e.Abort(sess)
				c.Save()
				return next(c)
			}
			_ = c.AnswerCallback("")
			c.Save()

			if err != nil {
				log.WithContext(c.Context()).Error("Wizard completion failed", zap.Error(err))
				text := res.Text
				if text == "" {
					text = FailureReply
				}
				return c.Reply(text)
			}
			if res.Keyboard != nil {
				return c.ReplyWithKeyboard(res.Text, res.Keyboard)
			}
			return c.Reply(res.Text)
		}
	}
}

func interrupts(upd *bot.Update, input string) bool {
	if input == CancelToken || input == CancelData {
		return false
	}
	if upd.IsCallback() {
		return !strings.HasPrefix(input, ChoicePrefix)
	}
	return strings.HasPrefix(input, "/")
}
