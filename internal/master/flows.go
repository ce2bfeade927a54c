package master

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/dto"
	"github.com/prohmpiriya/botfleet/internal/service"
	"github.com/prohmpiriya/botfleet/internal/wizard"
)

const (
	flowNew          = "new"
	flowQuota        = "quota"
	flowPrice        = "price"
	flowDefaultPrice = "default_price"

	fieldTenant     = "tenant_id"
	fieldName       = "name"
	fieldCredential = "credential"
	fieldOwner      = "owner"
	fieldQuota      = "max_users"
	fieldPrice      = "price"

	// priceDefault clears the override
	priceDefault = "default"
)

func (cp *ControlPlane) flows() []*wizard.Flow {
	return []*wizard.Flow{
		{
			Name: flowNew,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageMasterAwaitName,
					Field:    fieldName,
					Prompt:   "New tenant. Send its name.",
					Validate: wizard.MaxLen(255, "The name must be between 1 and 255 characters."),
				},
				{
					Stage:    domain.StageMasterAwaitCredential,
					Field:    fieldCredential,
					Prompt:   "Send the bot credential of the tenant.",
					Validate: wizard.Required("The credential cannot be empty."),
				},
				{
					Stage:    domain.StageMasterAwaitOwner,
					Field:    fieldOwner,
					Prompt:   "Send the numeric chat ID of the owner.",
					Validate: wizard.Numeric("The owner ID must be a number."),
				},
			},
			Complete: cp.completeNew,
		},
		{
			Name: flowQuota,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageMasterAwaitQuota,
					Field:    fieldQuota,
					Prompt:   "Send the new user limit.",
					Validate: wizard.PositiveInt("The limit must be a whole number greater than zero."),
				},
			},
			Complete: cp.completeQuota,
		},
		{
			Name: flowPrice,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageMasterAwaitPrice,
					Field:    fieldPrice,
					Prompt:   "Send the new price, or \"default\" to use the default price.",
					Validate: priceOrDefault,
				},
			},
			Complete: cp.completePrice,
		},
		{
			Name: flowDefaultPrice,
			Steps: []wizard.Step{
				{
					Stage:    domain.StageMasterAwaitDefaultPrice,
					Field:    fieldPrice,
					Prompt:   "Send the new default price.",
					Validate: wizard.Price("Send a price such as 49.90."),
				},
			},
			Complete: cp.completeDefaultPrice,
		},
	}
}

func priceOrDefault(input string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(input), priceDefault) {
		return priceDefault, nil
	}
	return wizard.Price("Send a price such as 49.90, or \"default\".")(input)
}

func (cp *ControlPlane) begin(c *bot.Context, flow string, tenantID int64) error {
	var preset map[string]string
	if tenantID > 0 {
		preset = map[string]string{fieldTenant: strconv.FormatInt(tenantID, 10)}
	}
	prompt, err := cp.engine.Begin(c.Session, flow, preset)
	if err != nil {
		return err
	}
	c.Save()
	return c.ReplyWithKeyboard(prompt.Text, prompt.Keyboard)
}

func (cp *ControlPlane) completeNew(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	tenant, err := cp.tenants.Provision(ctx, &dto.CreateTenantRequest{
		Name:          values[fieldName],
		BotCredential: values[fieldCredential],
		OwnerID:       values[fieldOwner],
	})
	if errors.Is(err, service.ErrInstanceStart) {
		return fmt.Sprintf("Tenant #%d saved, but its bot did not start.\nError: %v", tenant.ID, err), err
	}
	if err != nil {
		return "Error: " + err.Error(), err
	}
	return fmt.Sprintf("Tenant #%d %s created and running.\n\n%s", tenant.ID, tenant.Name, cp.card(ctx, tenant)), nil
}

func (cp *ControlPlane) completeQuota(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	id, err := tenantOf(values)
	if err != nil {
		return "Error: " + err.Error(), err
	}
	n, err := strconv.Atoi(values[fieldQuota])
	if err != nil {
		return "Error: " + err.Error(), err
	}
	return cp.setQuota(ctx, id, n)
}

func (cp *ControlPlane) completePrice(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	id, err := tenantOf(values)
	if err != nil {
		return "Error: " + err.Error(), err
	}
	return cp.setPrice(ctx, id, values[fieldPrice])
}

func (cp *ControlPlane) completeDefaultPrice(ctx context.Context, sess *domain.Session, values map[string]string) (string, error) {
	return cp.setDefaultPrice(ctx, values[fieldPrice])
}

func (cp *ControlPlane) setQuota(ctx context.Context, id int64, n int) (string, error) {
	tenant, err := cp.tenants.SetMaxUsers(ctx, id, n)
	if err != nil {
		return "Error: " + err.Error(), err
	}
	return fmt.Sprintf("Tenant #%d user limit set to %d.", tenant.ID, tenant.MaxUsers), nil
}

func (cp *ControlPlane) setPrice(ctx context.Context, id int64, raw string) (string, error) {
	var price *float64
	if !strings.EqualFold(strings.TrimSpace(raw), priceDefault) {
		v, err := wizard.ParsePrice(raw)
		if err != nil {
			return "Error: " + err.Error(), err
		}
		price = &v
	}
	tenant, err := cp.tenants.SetPrice(ctx, id, price)
	if err != nil {
		return "Error: " + err.Error(), err
	}
	if price == nil {
		return fmt.Sprintf("Tenant #%d now uses the default price.", tenant.ID), nil
	}
	return fmt.Sprintf("Tenant #%d price set to %.2f.", tenant.ID, *price), nil
}

func (cp *ControlPlane) setDefaultPrice(ctx context.Context, raw string) (string, error) {
	v, err := wizard.ParsePrice(raw)
	if err != nil {
		return "Error: " + err.Error(), err
	}
	if err := cp.settings.SetDefaultPrice(ctx, v); err != nil {
		return "Error: " + err.Error(), err
	}
	return fmt.Sprintf("Default price set to %.2f.", v), nil
}

func tenantOf(values map[string]string) (int64, error) {
	return parseID(values[fieldTenant])
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid tenant id %q", raw)
	}
	return id, nil
}
