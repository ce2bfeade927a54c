package tenantbot

import (
	"context"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/client/llm"
	"github.com/prohmpiriya/botfleet/internal/client/messaging"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"github.com/prohmpiriya/botfleet/internal/gateway"
	"github.com/prohmpiriya/botfleet/internal/lifecycle"
	"github.com/prohmpiriya/botfleet/internal/wizard"
	"github.com/prohmpiriya/botfleet/pkg/logger"
)

// Fixed replies shared by the tenant bots
const (
	OwnerOnlyReply   = "Sorry, only the owner can use this command."
	WelcomeReply     = "Hi! Send me a message and I will get back to you."
	DefaultAutoReply = "Thanks for your message! We will get back to you soon."
	UnavailableReply = "Sorry, I can't answer right now. Please try again later."
	UnknownReply     = "Unknown command. Send /help to see what I can do."
)

// TenantUpdater is the part of service.TenantService the owner wizards commit through
type TenantUpdater interface {
	UpdatePaymentCredentials(ctx context.Context, id int64, gatewayID, secret string) (*domain.Tenant, error)
	UpdateAISettings(ctx context.Context, id int64, key, model string) (*domain.Tenant, error)
	UpdateSystemPrompt(ctx context.Context, id int64, prompt string) (*domain.Tenant, error)
	EffectivePrice(ctx context.Context, tenant *domain.Tenant) (float64, error)
}

// Config holds tenant bot settings
type Config struct {
	Models       []string
	DefaultModel string
	KeyPrefix    string
	AutoReply    string
	PromptMaxLen int
}

// Handlers installs the owner commands, owner wizards and the end-user
// content handler on every tenant router. One Handlers serves the whole fleet.
type Handlers struct {
	cfg       Config
	tenants   TenantUpdater
	messaging messaging.Gateway
	llm       llm.Completer
	payments  gateway.PaymentGateway
	engine    *wizard.Engine
	log       *logger.Logger
	now       func() time.Time
}

// NewHandlers creates the tenant bot handlers. The tenant service is bound
// later with SetTenantService since it depends on the lifecycle manager.
func NewHandlers(
	cfg Config,
	gw messaging.Gateway,
	completer llm.Completer,
	payments gateway.PaymentGateway,
	log *logger.Logger,
) *Handlers {
	if len(cfg.Models) == 0 {
		cfg.Models = []string{domain.DefaultAIModel}
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = cfg.Models[0]
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sk-"
	}
	if cfg.AutoReply == "" {
		cfg.AutoReply = DefaultAutoReply
	}
	if cfg.PromptMaxLen <= 0 {
		cfg.PromptMaxLen = 4000
	}
	if payments == nil {
		payments = gateway.NewNoopGateway()
	}
	if log == nil {
		log = logger.Nop()
	}
	h := &Handlers{
		cfg:       cfg,
		messaging: gw,
		llm:       completer,
		payments:  payments,
		log:       log.Named("tenantbot"),
		now:       time.Now,
	}
	h.engine = wizard.MustEngine(h.flows()...)
	return h
}

// SetTenantService binds the service the owner wizards commit through
func (h *Handlers) SetTenantService(tenants TenantUpdater) {
	h.tenants = tenants
}

// Engine returns the wizard engine shared by every tenant router
func (h *Handlers) Engine() *wizard.Engine {
	return h.engine
}

// Register implements lifecycle.Registrar
func (h *Handlers) Register(r *bot.Router, inst *lifecycle.Instance) {
	h.register(r, inst)
}

func (h *Handlers) register(r *bot.Router, t gate.Target) {
	r.Command("start", h.start(t))
	r.Command("menu", h.owner(t, h.menu))
	r.Command("help", h.help(t))
	r.Command("status", h.owner(t, h.status))
	r.Command("payment", h.owner(t, h.beginFlow(FlowPayment)))
	r.Command("ai", h.owner(t, h.beginFlow(FlowAI)))
	r.Command("prompt", h.owner(t, h.beginFlow(FlowPrompt)))
	r.Command("connect", h.owner(t, h.beginFlow(FlowConnect)))
	r.Command("instances", h.owner(t, h.instances))
	r.Command("renew", h.owner(t, h.renew))
	r.Action(menuPrefix, h.owner(t, h.menuAction))
	r.OnText(h.content(t))
	r.OnUnknown(func(c *bot.Context) error {
		_ = c.AnswerCallback("")
		return c.Reply(UnknownReply)
	})
}

// ownerHandler receives the tenant snapshot taken when the update arrived
type ownerHandler func(c *bot.Context, tenant *domain.Tenant) error

func (h *Handlers) owner(t gate.Target, next ownerHandler) bot.HandlerFunc {
	return func(c *bot.Context) error {
		tenant := t.Tenant()
		if !tenant.IsOwner(c.UserID()) {
			_ = c.AnswerCallback("")
			return c.Reply(OwnerOnlyReply)
		}
		_ = c.AnswerCallback("")
		return next(c, tenant)
	}
}
