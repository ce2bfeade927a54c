package master

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
)

const (
	cardPrefix = "t:"

	verbView   = "view"
	verbQuota  = "quota"
	verbPrice  = "price"
	verbRenew  = "renew"
	verbToggle = "toggle"
)

const helpText = `/new - create a tenant
/tenants - list tenants
/tenant <id> - show one tenant
/quota <id> <n> - set the user limit
/price <id> <amount|default> - set or clear the price
/renew <id> - extend the plan by one period
/toggle <id> - activate or deactivate
/defaultprice [amount] - show or set the default price
/cancel - stop the current step`

func (cp *ControlPlane) register(r *bot.Router) {
	r.Command("start", cp.help)
	r.Command("help", cp.help)
	r.Command("new", func(c *bot.Context) error { return cp.begin(c, flowNew, 0) })
	r.Command("tenants", cp.list)
	r.Command("tenant", cp.withID(cp.view))
	r.Command("quota", cp.quota)
	r.Command("price", cp.price)
	r.Command("renew", cp.withID(cp.renew))
	r.Command("toggle", cp.withID(cp.toggle))
	r.Command("defaultprice", cp.defaultPrice)
	r.Action(cardPrefix, cp.cardAction)
	r.OnText(cp.help)
	r.OnUnknown(func(c *bot.Context) error {
		_ = c.AnswerCallback("")
		return c.Reply("Unknown command.\n\n" + helpText)
	})
}

func (cp *ControlPlane) help(c *bot.Context) error {
	return c.Reply(helpText)
}

type idHandler func(c *bot.Context, id int64) error

func (cp *ControlPlane) withID(next idHandler) bot.HandlerFunc {
	return func(c *bot.Context) error {
		args := c.Args()
		if len(args) < 1 {
			return c.Reply("Usage: send the tenant id after the command, for example /tenant 7")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Reply("Error: " + err.Error())
		}
		return next(c, id)
	}
}

func (cp *ControlPlane) cardAction(c *bot.Context) error {
	_ = c.AnswerCallback("")
	args := c.Args()
	if len(args) != 2 {
		return c.Reply("Error: malformed button")
	}
	id, err := parseID(args[1])
	if err != nil {
		return c.Reply("Error: " + err.Error())
	}
	switch args[0] {
	case verbView:
		return cp.view(c, id)
	case verbQuota:
		return cp.beginFor(c, flowQuota, id)
	case verbPrice:
		return cp.beginFor(c, flowPrice, id)
	case verbRenew:
		return cp.renew(c, id)
	case verbToggle:
		return cp.toggle(c, id)
	default:
		return c.Reply("Error: unknown action " + args[0])
	}
}

// beginFor starts a per-tenant wizard after checking the tenant exists
func (cp *ControlPlane) beginFor(c *bot.Context, flow string, id int64) error {
	if _, err := cp.tenants.Get(c.Context(), id); err != nil {
		return c.Reply("Error: " + err.Error())
	}
	return cp.begin(c, flow, id)
}

func (cp *ControlPlane) list(c *bot.Context) error {
	tenants, err := cp.tenants.List(c.Context())
	if err != nil {
		return c.Reply("Error: " + err.Error())
	}
	if len(tenants) == 0 {
		return c.Reply("No tenants yet. Send /new to create one.")
	}

	var b strings.Builder
	kb := &bot.Keyboard{}
	b.WriteString("Tenants:")
	for _, t := range tenants {
		fmt.Fprintf(&b, "\n#%d %s: %s", t.ID, t.Name, cp.state(t))
		kb.Rows = append(kb.Rows, bot.Row(cardButton(fmt.Sprintf("#%d %s", t.ID, t.Name), verbView, t.ID)))
	}
	return c.ReplyWithKeyboard(b.String(), kb)
}

func (cp *ControlPlane) view(c *bot.Context, id int64) error {
	tenant, err := cp.tenants.Get(c.Context(), id)
	if err != nil {
		return c.Reply("Error: " + err.Error())
	}
	return c.ReplyWithKeyboard(cp.card(c.Context(), tenant), cardKeyboard(tenant))
}

func (cp *ControlPlane) quota(c *bot.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Reply("Usage: /quota <id> <n>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply("Error: " + err.Error())
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Reply(fmt.Sprintf("Error: %q is not a whole number", args[1]))
	}
	text, _ := cp.setQuota(c.Context(), id, n)
	return c.Reply(text)
}

func (cp *ControlPlane) price(c *bot.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Reply("Usage: /price <id> <amount|default>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply("Error: " + err.Error())
	}
	text, _ := cp.setPrice(c.Context(), id, args[1])
	return c.Reply(text)
}

func (cp *ControlPlane) renew(c *bot.Context, id int64) error {
	exp, err := cp.tenants.Renew(c.Context(), id)
	if err != nil {
		if exp.IsZero() {
			return c.Reply("Error: " + err.Error())
		}
		return c.Reply(fmt.Sprintf("Tenant #%d renewed until %s, but its bot is not running: %v", id, exp.Format("2006-01-02"), err))
	}
	return c.Reply(fmt.Sprintf("Tenant #%d renewed until %s.", id, exp.Format("2006-01-02")))
}

func (cp *ControlPlane) toggle(c *bot.Context, id int64) error {
	tenant, err := cp.tenants.Toggle(c.Context(), id)
	if err != nil {
		if tenant == nil {
			return c.Reply("Error: " + err.Error())
		}
		return c.Reply(fmt.Sprintf("Tenant #%d is now %s, with an error: %v", id, activeWord(tenant.IsActive), err))
	}
	return c.Reply(fmt.Sprintf("Tenant #%d is now %s.", id, activeWord(tenant.IsActive)))
}

func (cp *ControlPlane) defaultPrice(c *bot.Context) error {
	args := c.Args()
	if len(args) == 0 {
		current, err := cp.settings.DefaultPrice(c.Context())
		if err != nil {
			return c.Reply("Error: " + err.Error())
		}
		if err := c.Reply(fmt.Sprintf("Current default price: %.2f", current)); err != nil {
			return err
		}
		return cp.begin(c, flowDefaultPrice, 0)
	}
	text, _ := cp.setDefaultPrice(c.Context(), args[0])
	return c.Reply(text)
}

func (cp *ControlPlane) card(ctx context.Context, t *domain.Tenant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", t.ID, t.Name)
	fmt.Fprintf(&b, "Status: %s\n", cp.state(t))
	if t.ExpirationDate != nil {
		fmt.Fprintf(&b, "Expires: %s\n", t.ExpirationDate.Format("2006-01-02 15:04"))
	} else {
		b.WriteString("Expires: never\n")
	}
	fmt.Fprintf(&b, "Max users: %d\n", t.MaxUsers)

	price, err := cp.tenants.EffectivePrice(ctx, t)
	switch {
	case err != nil:
		fmt.Fprintf(&b, "Price: error: %v\n", err)
	case t.SubscriptionPrice == nil:
		fmt.Fprintf(&b, "Price: %.2f (default)\n", price)
	default:
		fmt.Fprintf(&b, "Price: %.2f\n", price)
	}

	owner := t.OwnerID
	if owner == "" {
		owner = "none"
	}
	fmt.Fprintf(&b, "Owner: %s\n", owner)
	if t.HasAI() {
		fmt.Fprintf(&b, "AI: %s", t.AIModel)
	} else {
		b.WriteString("AI: off")
	}
	return b.String()
}

func (cp *ControlPlane) state(t *domain.Tenant) string {
	running := "stopped"
	if cp.running != nil && cp.running.IsRunning(t.ID) {
		running = "running"
	}
	return activeWord(t.IsActive) + ", " + running
}

func cardKeyboard(t *domain.Tenant) *bot.Keyboard {
	toggle := "Deactivate"
	if !t.IsActive {
		toggle = "Activate"
	}
	return bot.NewKeyboard(
		bot.Row(cardButton("User limit", verbQuota, t.ID), cardButton("Price", verbPrice, t.ID)),
		bot.Row(cardButton("Renew", verbRenew, t.ID), cardButton(toggle, verbToggle, t.ID)),
	)
}

func cardButton(text, verb string, id int64) bot.Button {
	return bot.Button{Text: text, Data: fmt.Sprintf("%s%s:%d", cardPrefix, verb, id)}
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
