package domain

import (
	"strings"
	"time"
)

const (
	// DefaultMaxUsers is the user quota of a freshly provisioned tenant
	DefaultMaxUsers = 10
	// DefaultAIModel is used when a tenant has not picked a model
	DefaultAIModel = "gpt-4o-mini"
	// SubscriptionPeriod is the length of one paid period
	SubscriptionPeriod = 30 * 24 * time.Hour
)

// Tenant is one customer running one isolated bot instance
type Tenant struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	BotCredential        string     `json:"bot_credential"`
	OwnerID              string     `json:"owner_id,omitempty"`
	IsActive             bool       `json:"is_active"`
	ExpirationDate       *time.Time `json:"expiration_date,omitempty"`
	MaxUsers             int        `json:"max_users"`
	SubscriptionPrice    *float64   `json:"subscription_price,omitempty"`
	AICredential         string     `json:"ai_credential,omitempty"`
	AIModel              string     `json:"ai_model"`
	SystemPrompt         string     `json:"system_prompt,omitempty"`
	PaymentGatewayID     string     `json:"payment_gateway_id,omitempty"`
	PaymentGatewaySecret string     `json:"payment_gateway_secret,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsExpired reports whether the expiration is strictly before now. A nil expiration never expires.
func (t *Tenant) IsExpired(now time.Time) bool {
	return t.ExpirationDate != nil && t.ExpirationDate.Before(now)
}

// IsOwner reports whether userID is the tenant's designated owner
func (t *Tenant) IsOwner(userID string) bool {
	return t.OwnerID != "" && t.OwnerID == userID
}

// HasAI reports whether the tenant configured an AI credential
func (t *Tenant) HasAI() bool {
	return t.AICredential != ""
}

// HasPaymentCredentials reports whether both gateway fields are set
func (t *Tenant) HasPaymentCredentials() bool {
	return t.PaymentGatewayID != "" && t.PaymentGatewaySecret != ""
}

// Clone returns a copy that shares no pointers with t
func (t *Tenant) Clone() *Tenant {
	c := *t
	if t.ExpirationDate != nil {
		exp := *t.ExpirationDate
		c.ExpirationDate = &exp
	}
	if t.SubscriptionPrice != nil {
		p := *t.SubscriptionPrice
		c.SubscriptionPrice = &p
	}
	return &c
}

// NextExpiration extends from the later of now and the current expiration.
// A renewal never shortens remaining access and a lapsed plan restarts at now.
func NextExpiration(now time.Time, current *time.Time, period time.Duration) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(period)
}

// MaskSecret keeps the first and last four characters of long secrets
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
