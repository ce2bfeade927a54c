package dto

import (
	"strconv"
	"time"
)

// Topic names for tenant events
const (
	TopicTenantProvisioned  = "tenant.provisioned"
	TopicTenantRenewed      = "tenant.renewed"
	TopicTenantStatusChange = "tenant.status-changed"
)

// RenewalSource tells where an extension came from
type RenewalSource string

const (
	RenewalSourceWebhook RenewalSource = "webhook"
	RenewalSourceManual  RenewalSource = "manual"
)

// TenantRenewedEvent is published after an expiration extension
type TenantRenewedEvent struct {
	EventID       string        `json:"event_id"`
	EventType     string        `json:"event_type"`
	TenantID      int64         `json:"tenant_id"`
	Source        RenewalSource `json:"source"`
	PaymentID     string        `json:"payment_id,omitempty"`
	Status        string        `json:"status,omitempty"`
	NewExpiration time.Time     `json:"new_expiration"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning
func (e *TenantRenewedEvent) Key() string {
	return strconv.FormatInt(e.TenantID, 10)
}

// TenantProvisionedEvent is published after a tenant is created
type TenantProvisionedEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	Started   bool      `json:"started"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning
func (e *TenantProvisionedEvent) Key() string {
	return strconv.FormatInt(e.TenantID, 10)
}

// TenantStatusChangedEvent is published when a tenant is toggled
type TenantStatusChangedEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	TenantID  int64     `json:"tenant_id"`
	IsActive  bool      `json:"is_active"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning
func (e *TenantStatusChangedEvent) Key() string {
	return strconv.FormatInt(e.TenantID, 10)
}
