package tenantbot

import (
	"strings"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/client/llm"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"go.uber.org/zap"
)

// Report keys updated on every end-user message
const (
	ReportMessages = "messages"
	ReportLastSeen = "last_seen"
)

// content answers plain text with an AI completion when the tenant has a
// key, and with the automatic reply otherwise.
func (h *Handlers) content(t gate.Target) bot.HandlerFunc {
	return func(c *bot.Context) error {
		text := strings.TrimSpace(c.Update.Text)
		if text == "" {
			return nil
		}
		tenant := t.Tenant()

		if c.Session != nil {
			touch(c.Session, h.now())
			c.Save()
		}

		if !tenant.HasAI() || h.llm == nil {
			return c.Reply(h.cfg.AutoReply)
		}

		answer, err := h.llm.Complete(c.Context(), &llm.Request{
			APIKey:       tenant.AICredential,
			Model:        modelOf(tenant, h.cfg.DefaultModel),
			SystemPrompt: tenant.SystemPrompt,
			UserMessage:  text,
		})
		if err != nil {
			h.log.WithContext(c.Context()).Error("Completion failed",
				zap.Int64("tenant_id", tenant.ID), zap.String("op", "complete"), zap.Error(err))
			return c.Reply(UnavailableReply)
		}
		return c.Reply(answer)
	}
}

func modelOf(tenant *domain.Tenant, fallback string) string {
	if tenant.AIModel != "" {
		return tenant.AIModel
	}
	return fallback
}

// touch bumps the message counter. Counts read back from JSON arrive as float64.
func touch(sess *domain.Session, now time.Time) {
	if sess.Report == nil {
		sess.Report = map[string]any{}
	}
	var n int64
	switch v := sess.Report[ReportMessages].(type) {
	case float64:
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	}
	sess.Report[ReportMessages] = n + 1
	sess.Report[ReportLastSeen] = now.UTC().Format(time.RFC3339)
}
