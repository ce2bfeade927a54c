package tenantbot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"github.com/prohmpiriya/botfleet/internal/gateway"
	"go.uber.org/zap"
)

const menuPrefix = "m:"

const helpText = `/status - plan, users and settings
/payment - set payment gateway credentials
/ai - set the AI key and model
/prompt - set the assistant instructions
/connect - link a messaging account
/instances - check linked accounts
/renew - renew your plan
/cancel - stop the current step`

func (h *Handlers) start(t gate.Target) bot.HandlerFunc {
	return func(c *bot.Context) error {
		tenant := t.Tenant()
		if !tenant.IsOwner(c.UserID()) {
			return c.Reply(WelcomeReply)
		}
		return h.menu(c, tenant)
	}
}

func (h *Handlers) help(t gate.Target) bot.HandlerFunc {
	return func(c *bot.Context) error {
		if !t.Tenant().IsOwner(c.UserID()) {
			return c.Reply(WelcomeReply)
		}
		return c.Reply(helpText)
	}
}

func (h *Handlers) menu(c *bot.Context, tenant *domain.Tenant) error {
	kb := bot.NewKeyboard(
		bot.Row(menuButton("Status", "status"), menuButton("Renew", "renew")),
		bot.Row(menuButton("AI", "ai"), menuButton("Instructions", "prompt")),
		bot.Row(menuButton("Payment", "payment")),
		bot.Row(menuButton("Connect account", "connect"), menuButton("Accounts", "instances")),
	)
	return c.ReplyWithKeyboard(fmt.Sprintf("%s control panel. What do you want to do?", tenant.Name), kb)
}

func menuButton(text, action string) bot.Button {
	return bot.Button{Text: text, Data: menuPrefix + action}
}

func (h *Handlers) menuAction(c *bot.Context, tenant *domain.Tenant) error {
	var action string
	if args := c.Args(); len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "status":
		return h.status(c, tenant)
	case "renew":
		return h.renew(c, tenant)
	case "instances":
		return h.instances(c, tenant)
	case "ai":
		return h.beginFlow(FlowAI)(c, tenant)
	case "prompt":
		return h.beginFlow(FlowPrompt)(c, tenant)
	case "payment":
		return h.beginFlow(FlowPayment)(c, tenant)
	case "connect":
		return h.beginFlow(FlowConnect)(c, tenant)
	default:
		return h.menu(c, tenant)
	}
}

func (h *Handlers) status(c *bot.Context, tenant *domain.Tenant) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", tenant.Name)

	switch {
	case tenant.ExpirationDate == nil:
		b.WriteString("Plan: no expiration\n")
	case tenant.IsExpired(h.now()):
		fmt.Fprintf(&b, "Plan: expired on %s\n", tenant.ExpirationDate.Format("2006-01-02"))
	default:
		fmt.Fprintf(&b, "Plan: active until %s\n", tenant.ExpirationDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Max users: %d\n", tenant.MaxUsers)

	if tenant.HasAI() {
		fmt.Fprintf(&b, "AI: on (%s)\n", tenant.AIModel)
	} else {
		b.WriteString("AI: off, automatic replies are used\n")
	}
	if tenant.HasPaymentCredentials() {
		fmt.Fprintf(&b, "Payment gateway: %s\n", domain.MaskSecret(tenant.PaymentGatewayID))
	} else {
		b.WriteString("Payment gateway: not configured\n")
	}
	fmt.Fprintf(&b, "Linked accounts: %d", len(c.Session.MessagingInstances))
	return c.Reply(b.String())
}

// instances refreshes the connection flag of every linked account
func (h *Handlers) instances(c *bot.Context, tenant *domain.Tenant) error {
	list := c.Session.MessagingInstances
	if len(list) == 0 {
		return c.Reply("No linked accounts yet. Send /connect to add one.")
	}

	var b strings.Builder
	b.WriteString("Linked accounts:")
	for i := range list {
		inst := &list[i]
		checked := false
		if h.messaging != nil {
			connected, err := h.messaging.Status(c.Context(), inst.Token)
			if err != nil {
				h.log.WithContext(c.Context()).Warn("Instance status check failed",
					zap.String("op", "instance_status"), zap.String("instance_id", inst.InstanceID), zap.Error(err))
			} else {
				inst.Connected = connected
				checked = true
			}
		}
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, inst.DisplayName, connectionState(inst.Connected, checked))
	}
	c.Save()
	return c.Reply(b.String())
}

func (h *Handlers) renew(c *bot.Context, tenant *domain.Tenant) error {
	ctx := c.Context()
	if h.tenants == nil {
		return c.Reply(UnavailableReply)
	}
	price, err := h.tenants.EffectivePrice(ctx, tenant)
	if err != nil {
		h.log.WithContext(ctx).Error("Failed to resolve price", zap.String("op", "renew"), zap.Error(err))
		return c.Reply(UnavailableReply)
	}

	checkout, err := h.payments.CreateCheckout(ctx, &gateway.CheckoutRequest{
		TenantID:    tenant.ID,
		Amount:      price,
		Description: fmt.Sprintf("%s subscription renewal", tenant.Name),
	})
	if errors.Is(err, gateway.ErrNotConfigured) {
		return c.Reply("Online renewal is not available. Please contact support.")
	}
	if err != nil {
		h.log.WithContext(ctx).Error("Failed to create checkout",
			zap.String("op", "renew"), zap.String("gateway", h.payments.Name()), zap.Error(err))
		return c.Reply(UnavailableReply)
	}
	return c.Reply(fmt.Sprintf("Renew your plan for %.2f here:\n%s\nYour bot is extended automatically once the payment is confirmed.", price, checkout.URL))
}

func connectionState(connected, checked bool) string {
	switch {
	case !checked:
		return "unknown"
	case connected:
		return "connected"
	default:
		return "not connected"
	}
}
