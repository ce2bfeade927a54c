package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNotConfigured is returned when no payment gateway credentials are set
var ErrNotConfigured = errors.New("payment gateway not configured")

// PaymentGateway creates hosted checkouts for subscription renewals
type PaymentGateway interface {
	// CreateCheckout creates a hosted payment page for one renewal
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error)

	// Name returns the gateway name
	Name() string
}

// CheckoutRequest represents a renewal checkout request
type CheckoutRequest struct {
	TenantID    int64
	Amount      float64
	Currency    string
	Description string
	Metadata    map[string]string
}

// CheckoutResponse represents a created checkout
type CheckoutResponse struct {
	SessionID string
	URL       string
	Status    string
}

// GatewayConfig holds common gateway configuration
type GatewayConfig struct {
	SecretKey        string
	Currency         string
	SuccessURL       string
	CancelURL        string
	ExternalIDPrefix string
	EmailDomain      string
}

// ExternalReference is the reference the webhook resolves back to the tenant
func (c *GatewayConfig) ExternalReference(tenantID int64) string {
	return fmt.Sprintf("%s%d", c.ExternalIDPrefix, tenantID)
}

// CustomerEmail embeds the tenant id in the local part
func (c *GatewayConfig) CustomerEmail(tenantID int64) string {
	return fmt.Sprintf("tenant%d@%s", tenantID, c.EmailDomain)
}

// MinorUnits converts an amount to the smallest currency unit
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// NoopGateway refuses every checkout; used when no secret key is configured
type NoopGateway struct{}

// NewNoopGateway creates a gateway that is never configured
func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

// CreateCheckout always fails with ErrNotConfigured
func (NoopGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	return nil, ErrNotConfigured
}

// Name returns the gateway name
func (NoopGateway) Name() string {
	return "noop"
}
