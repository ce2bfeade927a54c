package master

import (
	"context"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/lifecycle"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/internal/service"
	"github.com/prohmpiriya/botfleet/internal/wizard"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"go.uber.org/zap"
)

// AccessDeniedReply is sent to anyone but the operator
const AccessDeniedReply = "Access denied."

// SessionStore is the part of session.Store the control plane uses
type SessionStore interface {
	Get(ctx context.Context, tenantID int64, userID string) (*domain.Session, error)
	Save(ctx context.Context, tenantID int64, userID string, sess *domain.Session)
}

// Running reports which tenants have a live instance
type Running interface {
	IsRunning(tenantID int64) bool
}

// Config holds control plane settings
type Config struct {
	OperatorID string
}

// ControlPlane is the operator bot. It runs on its own credential, outside
// the tenant registry, and keeps its sessions under domain.MasterTenantID.
type ControlPlane struct {
	cfg      Config
	tenants  service.TenantService
	settings service.SettingsService
	running  Running
	sessions SessionStore
	engine   *wizard.Engine
	router   *bot.Router
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New builds the control plane router
func New(
	cfg Config,
	tenants service.TenantService,
	settings service.SettingsService,
	running Running,
	sessions SessionStore,
	log *logger.Logger,
	m *metrics.Metrics,
) *ControlPlane {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	cp := &ControlPlane{
		cfg:      cfg,
		tenants:  tenants,
		settings: settings,
		running:  running,
		sessions: sessions,
		log:      log.Named("master"),
		metrics:  m,
	}
	cp.engine = wizard.MustEngine(cp.flows()...)

	r := bot.NewRouter()
	r.Use(
		cp.operatorOnly,
		bot.Recover(cp.log),
		bot.Logging(cp.log),
		cp.loadSession,
		cp.engine.Middleware(cp.log),
	)
	cp.register(r)
	cp.router = r
	return cp
}

// Router returns the dispatch pipeline
func (cp *ControlPlane) Router() *bot.Router {
	return cp.router
}

// Run serves the control plane on transport until ctx is cancelled
func (cp *ControlPlane) Run(ctx context.Context, transport lifecycle.Transport) error {
	cp.log.Info("Control plane started", zap.String("operator_id", cp.cfg.OperatorID))
	return lifecycle.Serve(ctx, transport, cp.router, cp.log, cp.metrics)
}

func (cp *ControlPlane) operatorOnly(next bot.HandlerFunc) bot.HandlerFunc {
	return func(c *bot.Context) error {
		if cp.cfg.OperatorID == "" || c.UserID() != cp.cfg.OperatorID {
			cp.log.WarnContext(c.Context(), "Rejected control plane access", zap.String("user_id", c.UserID()))
			_ = c.AnswerCallback("")
			return c.Reply(AccessDeniedReply)
		}
		return next(c)
	}
}

func (cp *ControlPlane) loadSession(next bot.HandlerFunc) bot.HandlerFunc {
	return func(c *bot.Context) error {
		userID := c.UserID()
		sess, err := cp.sessions.Get(c.Context(), domain.MasterTenantID, userID)
		if err != nil {
			_ = c.Reply("Error: " + err.Error())
			return err
		}
		c.SetSession(sess, func(ctx context.Context, s *domain.Session) {
			cp.sessions.Save(ctx, domain.MasterTenantID, userID, s)
		})
		return next(c)
	}
}
