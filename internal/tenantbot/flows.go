package tenantbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/wizard"
	"go.uber.org/zap"
)

// Owner wizard flows
const (
	FlowPayment = "payment"
	FlowAI      = "ai"
	FlowPrompt  = "prompt"
	FlowConnect = "connect"
)

const (
	fieldTenant        = "tenant_id"
	fieldGatewayID     = "gateway_id"
	fieldGatewaySecret = "gateway_secret"
	fieldAIKey         = "ai_key"
	fieldAIModel       = "ai_model"
	fieldPrompt        = "prompt"
	fieldInstanceName  = "instance_name"
)

var errNoTenantService = errors.New("tenant service not bound")

func (h *Handlers) flows() []*wizard.Flow {
	return []*wizard.Flow{
		{
			Name: FlowPayment,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageAwaitID,
					Field:    fieldGatewayID,
					Prompt:   "Send your payment gateway account ID.",
					Validate: wizard.Required("The account ID cannot be empty. Send it again, or /cancel."),
				},
				{
					Stage:    domain.StageAwaitSecret,
					Field:    fieldGatewaySecret,
					Prompt:   "Now send the gateway secret key.",
					Validate: wizard.Required("The secret cannot be empty. Send it again, or /cancel."),
				},
			},
			Complete: h.completePayment,
		},
		{
			Name: FlowAI,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageAwaitKey,
					Field:    fieldAIKey,
					Prompt:   fmt.Sprintf("Send your AI API key. It starts with %s", h.cfg.KeyPrefix),
					Validate: wizard.Prefix(h.cfg.KeyPrefix, fmt.Sprintf("That does not look like a valid key. It must start with %s", h.cfg.KeyPrefix)),
				},
				{
					Stage:   domain.StageAwaitModelChoice,
					Field:   fieldAIModel,
					Prompt:  "Choose the model your bot should use.",
					Choices: h.cfg.Models,
				},
			},
			Complete: h.completeAI,
		},
		{
			Name: FlowPrompt,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageAwaitPrompt,
					Field:    fieldPrompt,
					Prompt:   "Send the instructions your assistant should follow.",
					Validate: wizard.MaxLen(h.cfg.PromptMaxLen, fmt.Sprintf("Instructions must be between 1 and %d characters.", h.cfg.PromptMaxLen)),
				},
			},
			Complete: h.completePrompt,
		},
		{
			Name: FlowConnect,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageAwaitInstanceName,
					Field:    fieldInstanceName,
					Prompt:   "Choose a name for the new messaging connection.",
					Validate: wizard.MaxLen(64, "The name must be between 1 and 64 characters."),
				},
			},
			Complete: h.completeConnect,
		},
	}
}

func (h *Handlers) beginFlow(flow string) ownerHandler {
	return func(c *bot.Context, tenant *domain.Tenant) error {
		prompt, err := h.engine.Begin(c.Session, flow, map[string]string{
			fieldTenant: strconv.FormatInt(tenant.ID, 10),
		})
		if err != nil {
			return err
		}
		c.Save()
		return c.ReplyWithKeyboard(prompt.Text, prompt.Keyboard)
	}
}

func (h *Handlers) completePayment(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	id, err := h.committer(values)
	if err != nil {
		return "", err
	}
	if _, err := h.tenants.UpdatePaymentCredentials(ctx, id, values[fieldGatewayID], values[fieldGatewaySecret]); err != nil {
		return "", h.opError(ctx, id, "update_payment", err)
	}
	return "Payment credentials saved.", nil
}

func (h *Handlers) completeAI(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	id, err := h.committer(values)
	if err != nil {
		return "", err
	}
	if _, err := h.tenants.UpdateAISettings(ctx, id, values[fieldAIKey], values[fieldAIModel]); err != nil {
		return "", h.opError(ctx, id, "update_ai", err)
	}
	return fmt.Sprintf("AI enabled with %s. Your customers will now get AI replies.", values[fieldAIModel]), nil
}

func (h *Handlers) completePrompt(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	id, err := h.committer(values)
	if err != nil {
		return "", err
	}
	if _, err := h.tenants.UpdateSystemPrompt(ctx, id, values[fieldPrompt]); err != nil {
		return "", h.opError(ctx, id, "update_prompt", err)
	}
	return "Instructions saved.", nil
}

// completeConnect creates the gateway instance and stores it in the owner's session
func (h *Handlers) completeConnect(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	id, err := tenantOf(values)
	if err != nil {
		return "", err
	}
	if h.messaging == nil {
		return "Messaging connections are not available.", errors.New("messaging gateway not configured")
	}

	name := values[fieldInstanceName]
	created, err := h.messaging.CreateInstance(ctx, name)
	if err != nil {
		return "", h.opError(ctx, id, "create_instance", err)
	}
	sess.MessagingInstances = append(sess.MessagingInstances, domain.MessagingInstance{
		InstanceID:  created.ID,
		Token:       created.Token,
		DisplayName: name,
	})

	qr, err := h.messaging.Connect(ctx, created.Token)
	if err != nil {
		h.log.WithContext(ctx).Warn("QR code unavailable",
			zap.Int64("tenant_id", id), zap.String("op", "connect_instance"), zap.Error(err))
		return fmt.Sprintf("Connection %q created, but the QR code is not ready yet. Send /instances to check it later.", name), nil
	}
	return fmt.Sprintf("Connection %q created. Scan this QR code with the app to link it:\n%s", name, qr), nil
}

func (h *Handlers) committer(values map[string]string) (int64, error) {
	if h.tenants == nil {
		return 0, errNoTenantService
	}
	return tenantOf(values)
}

func (h *Handlers) opError(ctx context.Context, tenantID int64, op string, err error) error {
	h.log.WithContext(ctx).Error("Owner operation failed",
		zap.Int64("tenant_id", tenantID), zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func tenantOf(values map[string]string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(values[fieldTenant]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wizard values carry no tenant: %w", err)
	}
	return id, nil
}
