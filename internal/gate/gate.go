package gate

import (
	"context"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/telemetry"
	"go.uber.org/zap"
)

// Fixed replies for admission refusals
const (
	ExpiredReply = "This bot's plan has expired. Please contact the bot owner to renew it."
	LimitReply   = "This bot has reached its user limit. Please try again later."
	FailureReply = "Something went wrong on our side. Please try again in a moment."
)

// Decision is the outcome of an admission check
type Decision string

const (
	DecisionAdmit         Decision = "admit"
	DecisionOwner         Decision = "owner"
	DecisionRefuseExpired Decision = "expired"
	DecisionRefuseQuota   Decision = "quota"
	DecisionError         Decision = "error"
)

// Admitted reports whether the update may proceed
func (d Decision) Admitted() bool {
	return d == DecisionAdmit || d == DecisionOwner
}

// SessionStore is the part of session.Store the gate needs
type SessionStore interface {
	Get(ctx context.Context, tenantID int64, userID string) (*domain.Session, error)
	Save(ctx context.Context, tenantID int64, userID string, sess *domain.Session)
	Known(ctx context.Context, tenantID int64, userID string) (bool, error)
}

// Target is a running instance as seen by the gate
type Target interface {
	Tenant() *domain.Tenant
	Counter() *UserCounter
}

// Gate admits or refuses inbound updates by expiration and user quota
type Gate struct {
	store   SessionStore
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a gate over store
func New(store SessionStore, log *logger.Logger, m *metrics.Metrics) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Gate{store: store, log: log.Named("gate"), metrics: m, now: time.Now}
}

// Check decides admission. Owners skip both checks. A refused new user leaves the counter unchanged.
func (g *Gate) Check(ctx context.Context, tenant *domain.Tenant, counter *UserCounter, userID string) (Decision, error) {
	ctx, span := telemetry.StartSpan(ctx, "gate.check")
	defer span.End()

	decision, err := g.check(ctx, tenant, counter, userID)
	span.SetAttributes(telemetry.TenantIDAttr(tenant.ID), telemetry.DecisionAttr(string(decision)))
	telemetry.RecordError(span, err)
	g.metrics.GateDecisions.WithLabelValues(string(decision)).Inc()
	return decision, err
}

func (g *Gate) check(ctx context.Context, tenant *domain.Tenant, counter *UserCounter, userID string) (Decision, error) {
	if tenant.IsOwner(userID) {
		return DecisionOwner, nil
	}
	if tenant.IsExpired(g.now()) {
		return DecisionRefuseExpired, nil
	}

	known, err := g.store.Known(ctx, tenant.ID, userID)
	if err != nil {
		return DecisionError, err
	}
	if known {
		return DecisionAdmit, nil
	}
	if !counter.TryAdmit(tenant.MaxUsers) {
		return DecisionRefuseQuota, nil
	}
	return DecisionAdmit, nil
}

// Middleware gates each update of target and injects the session on admission
func (g *Gate) Middleware(target Target) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(c *bot.Context) error {
			tenant := target.Tenant()
			userID := c.UserID()
			ctx := logger.ContextWithTenant(c.Context(), tenant.ID, userID)
			c.WithContext(ctx)

			decision, err := g.Check(ctx, tenant, target.Counter(), userID)
			switch {
			case err != nil:
				g.log.ErrorContext(ctx, "Admission check failed", zap.Error(err))
				_ = c.Reply(FailureReply)
				return err
			case decision == DecisionRefuseExpired:
				g.log.DebugContext(ctx, "Refused update", zap.String("reason", "expired"))
				_ = c.AnswerCallback("")
				return c.Reply(ExpiredReply)
			case decision == DecisionRefuseQuota:
				g.log.DebugContext(ctx, "Refused update", zap.String("reason", "quota"))
				_ = c.AnswerCallback("")
				return c.Reply(LimitReply)
			}

			sess, err := g.store.Get(ctx, tenant.ID, userID)
			if err != nil {
				g.log.ErrorContext(ctx, "Failed to load session", zap.Error(err))
				_ = c.Reply(FailureReply)
				return err
			}

			tenantID := tenant.ID
			c.SetSession(sess, func(ctx context.Context, s *domain.Session) {
				g.store.Save(ctx, tenantID, userID, s)
			})
			return next(c)
		}
	}
}
