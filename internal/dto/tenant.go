package dto

import (
	"strconv"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
)

// CreateTenantRequest is the body of POST /admin/create-tenant
type CreateTenantRequest struct {
	Name                 string `json:"name" binding:"required,min=1,max=255"`
	BotCredential        string `json:"bot_credential" binding:"required"`
	PaymentGatewayID     string `json:"payment_gateway_id"`
	PaymentGatewaySecret string `json:"payment_gateway_secret"`
	OwnerID              string `json:"owner_identifier" binding:"omitempty,max=64"`
	MaxUsers             int    `json:"max_users" binding:"omitempty,min=1"`
}

// TenantResponse is a tenant with its secrets masked
type TenantResponse struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	OwnerID              string   `json:"owner_identifier,omitempty"`
	IsActive             bool     `json:"is_active"`
	ExpirationDate       string   `json:"expiration_date,omitempty"`
	MaxUsers             int      `json:"max_users"`
	SubscriptionPrice    *float64 `json:"subscription_price,omitempty"`
	AIModel              string   `json:"ai_model"`
	BotCredential        string   `json:"bot_credential"`
	PaymentGatewayID     string   `json:"payment_gateway_id,omitempty"`
	PaymentGatewaySecret string   `json:"payment_gateway_secret,omitempty"`
	Running              bool     `json:"running"`
	CreatedAt            string   `json:"created_at"`
}

// NewTenantResponse converts a tenant for API output
func NewTenantResponse(t *domain.Tenant, running bool) TenantResponse {
	resp := TenantResponse{
		ID:                   strconv.FormatInt(t.ID, 10),
		Name:                 t.Name,
		OwnerID:              t.OwnerID,
		IsActive:             t.IsActive,
		MaxUsers:             t.MaxUsers,
		SubscriptionPrice:    t.SubscriptionPrice,
		AIModel:              t.AIModel,
		BotCredential:        domain.MaskSecret(t.BotCredential),
		PaymentGatewayID:     t.PaymentGatewayID,
		PaymentGatewaySecret: domain.MaskSecret(t.PaymentGatewaySecret),
		Running:              running,
		CreatedAt:            t.CreatedAt.Format(time.RFC3339),
	}
	if t.ExpirationDate != nil {
		resp.ExpirationDate = t.ExpirationDate.Format(time.RFC3339)
	}
	return resp
}
