package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/dto"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/pkg/kafka"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/telemetry"
)

var (
	ErrInvalidPayload   = errors.New("invalid payment notification")
	ErrInvalidSignature = errors.New("invalid payment notification signature")
	ErrTenantUnresolved = errors.New("could not resolve tenant from notification")
	ErrTenantNotFound   = errors.New("tenant not found")
)

// Notifier reaches the running bot of a tenant
type Notifier interface {
	IsRunning(tenantID int64) bool
	Reload(ctx context.Context, tenantID int64) error
	Notify(ctx context.Context, tenantID int64, text string) error
}

// Config holds reconciler settings
type Config struct {
	Period           time.Duration
	ExternalIDPrefix string
	WebhookSecret    string
}

// Outcome is the result of a processed notification
type Outcome struct {
	Ignored       bool
	Reason        string
	TenantID      int64
	NewExpiration time.Time
}

// Reconciler turns completed payment notifications into subscription renewals
type Reconciler struct {
	cfg       Config
	tenants   repository.TenantRepository
	events    repository.PaymentEventRepository
	notifier  Notifier
	publisher kafka.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	renewals  *telemetry.Counter
	now       func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(
	cfg Config,
	tenants repository.TenantRepository,
	events repository.PaymentEventRepository,
	notifier Notifier,
	publisher kafka.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
) *Reconciler {
	if cfg.Period <= 0 {
		cfg.Period = domain.SubscriptionPeriod
	}
	if publisher == nil {
		publisher = kafka.NewNoopPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Reconciler{
		cfg:       cfg,
		tenants:   tenants,
		events:    events,
		notifier:  notifier,
		publisher: publisher,
		log:       log.Named("billing"),
		metrics:   m,
		renewals: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "subscription_renewals_total",
			Description: "Subscription renewals applied from payment notifications",
			Unit:        "1",
		}),
		now: time.Now,
	}
}

// VerifySignature checks a Stripe-Signature header when a secret is
// configured. Unsigned payloads pass when no header is sent.
func (r *Reconciler) VerifySignature(payload []byte, header string) error {
	if r.cfg.WebhookSecret == "" || header == "" {
		return nil
	}
	if err := webhook.ValidatePayload(payload, header, r.cfg.WebhookSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Process applies one notification. Non-completed statuses and replayed
// event ids are ignored without touching the tenant.
func (r *Reconciler) Process(ctx context.Context, payload []byte) (*Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "billing.process")
	defer span.End()

	out, err := r.process(ctx, payload)
	telemetry.RecordError(span, err)
	r.metrics.WebhookEvents.WithLabelValues(outcomeLabel(out, err)).Inc()
	return out, err
}

func (r *Reconciler) process(ctx context.Context, payload []byte) (*Outcome, error) {
	n, err := ParseNotification(payload, ParseOptions{ExternalIDPrefix: r.cfg.ExternalIDPrefix})
	if err != nil {
		return nil, err
	}
	log := r.log.WithContext(ctx).WithFields(zap.String("status", n.Status), zap.String("event_id", n.EventID))

	if !n.Completed() {
		log.Info("Ignoring payment notification")
		return &Outcome{Ignored: true, Reason: fmt.Sprintf("status %q is not a completed payment", n.Status)}, nil
	}
	if !n.Resolved() {
		log.Warn("Payment notification without tenant reference")
		return nil, ErrTenantUnresolved
	}
	log = log.ForTenant(n.TenantID)
	telemetry.SetSpanAttributes(ctx, telemetry.TenantIDAttr(n.TenantID))

	tenant, err := r.tenants.GetByID(ctx, n.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %d: %w", n.TenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: %d", ErrTenantNotFound, n.TenantID)
	}

	if n.EventID != "" {
		fresh, err := r.events.Record(ctx, n.EventID, tenant.ID, n.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to record payment event: %w", err)
		}
		if !fresh {
			log.Info("Duplicate payment notification")
			return &Outcome{Ignored: true, Reason: "duplicate event", TenantID: tenant.ID}, nil
		}
	}

	newExp, err := r.tenants.Renew(ctx, tenant.ID, r.now(), r.cfg.Period)
	if err != nil {
		if n.EventID != "" {
			if relErr := r.events.Release(ctx, n.EventID); relErr != nil {
				log.Error("Failed to release payment event", zap.Error(relErr))
			}
		}
		return nil, fmt.Errorf("failed to renew tenant %d: %w", tenant.ID, err)
	}

	r.renewals.Inc(ctx, telemetry.TenantIDAttr(tenant.ID), telemetry.PaymentStatusAttr(n.Status))
	log.Info("Subscription renewed", zap.Time("new_expiration", newExp), zap.String("strategy", n.Strategy))

	r.publish(ctx, log, &dto.TenantRenewedEvent{
		EventID:       uuid.New().String(),
		EventType:     dto.TopicTenantRenewed,
		TenantID:      tenant.ID,
		Source:        dto.RenewalSourceWebhook,
		PaymentID:     n.EventID,
		Status:        n.Status,
		NewExpiration: newExp,
		Timestamp:     r.now(),
	})
	r.notifyOwner(ctx, log, tenant.ID, newExp)

	return &Outcome{TenantID: tenant.ID, NewExpiration: newExp}, nil
}

func (r *Reconciler) publish(ctx context.Context, log *logger.Logger, event *dto.TenantRenewedEvent) {
	if err := r.publisher.Publish(ctx, dto.TopicTenantRenewed, event.Key(), event); err != nil {
		log.Warn("Failed to publish renewal event", zap.Error(err))
	}
}

func (r *Reconciler) notifyOwner(ctx context.Context, log *logger.Logger, tenantID int64, exp time.Time) {
	if r.notifier == nil || !r.notifier.IsRunning(tenantID) {
		return
	}
	// the instance snapshot still carries the old expiration
	if err := r.notifier.Reload(ctx, tenantID); err != nil {
		log.Warn("Failed to reload instance after renewal", zap.Error(err))
	}
	if err := r.notifier.Notify(ctx, tenantID, RenewalMessage(exp)); err != nil {
		log.Warn("Failed to notify owner of renewal", zap.Error(err))
	}
}

// RenewalMessage is the owner notification after a renewal
func RenewalMessage(exp time.Time) string {
	return fmt.Sprintf("Payment received, thank you! Your plan is now active until %s.", exp.Format("02 Jan 2006"))
}

func outcomeLabel(out *Outcome, err error) string {
	switch {
	case errors.Is(err, ErrTenantUnresolved):
		return "unresolved"
	case errors.Is(err, ErrTenantNotFound):
		return "not_found"
	case err != nil:
		return "error"
	case out.Ignored && out.Reason == "duplicate event":
		return "duplicate"
	case out.Ignored:
		return "ignored"
	default:
		return "renewed"
	}
}
