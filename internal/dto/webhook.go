package dto

// WebhookResponse is the body returned from POST /webhook/master
type WebhookResponse struct {
	Success       bool   `json:"success,omitempty"`
	Ignored       bool   `json:"ignored,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
	NewExpiration string `json:"new_expiration,omitempty"`
}
