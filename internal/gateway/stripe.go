package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// StripeGateway creates Checkout Sessions through the Stripe API
type StripeGateway struct {
	cfg      GatewayConfig
	sessions session.Client
}

// NewStripeGateway creates a gateway bound to cfg.SecretKey
func NewStripeGateway(cfg GatewayConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Currency == "" {
		cfg.Currency = "brl"
	}
	return &StripeGateway{
		cfg:      cfg,
		sessions: session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
	}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateCheckout creates a one-off payment session tagged with the tenant
func (g *StripeGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	params := g.checkoutParams(req)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutResponse{SessionID: s.ID, URL: s.URL, Status: string(s.Status)}, nil
}

func (g *StripeGateway) checkoutParams(req *CheckoutRequest) *stripe.CheckoutSessionParams {
	currency := req.Currency
	if currency == "" {
		currency = g.cfg.Currency
	}
	description := req.Description
	if description == "" {
		description = "Subscription renewal"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(g.cfg.ExternalReference(req.TenantID)),
		CustomerEmail:     stripe.String(g.cfg.CustomerEmail(req.TenantID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(currency)),
					UnitAmount: stripe.Int64(MinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("tenant_id", strconv.FormatInt(req.TenantID, 10))
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}
