package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// completedStatuses are the gateway statuses that mean money was received
var completedStatuses = map[string]bool{
	"paid":      true,
	"approved":  true,
	"completed": true,
	"complete":  true,
	"succeeded": true,
	"confirmed": true,
	"received":  true,
}

var (
	externalIDFields = []string{"external_reference", "externalReference", "external_id", "client_reference_id", "reference"}
	emailFields      = []string{"email", "customer_email", "payer.email", "customer.email", "customer_details.email"}
	emailTenantID    = regexp.MustCompile(`(?i)tenant[_.-]?(\d+)`)
)

// Resolution strategies, in the order they are tried
const (
	StrategyMetadata   = "metadata"
	StrategyExternalID = "external_id"
	StrategyEmail      = "email"
)

// ParseOptions configures tenant resolution
type ParseOptions struct {
	ExternalIDPrefix string
}

// Notification is the normalized content of a payment webhook
type Notification struct {
	EventID  string
	Status   string
	TenantID int64
	Strategy string
}

// Completed reports whether the status means a successful payment
func (n *Notification) Completed() bool {
	return IsCompleted(n.Status)
}

// Resolved reports whether a tenant id was found
func (n *Notification) Resolved() bool {
	return n.Strategy != ""
}

// IsCompleted reports whether status is one of the completed payment statuses
func IsCompleted(status string) bool {
	return completedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

type object map[string]interface{}

// ParseNotification extracts status, event id and tenant from a gateway
// payload. Fields are looked up on the root, then data, then data.object.
func ParseNotification(payload []byte, opts ParseOptions) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var root object
	if err := dec.Decode(&root); err != nil || root == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidPayload)
	}

	scopes := []object{root}
	if data, ok := root["data"].(map[string]interface{}); ok {
		scopes = append(scopes, object(data))
		if obj, ok := data["object"].(map[string]interface{}); ok {
			scopes = append(scopes, object(obj))
		}
	}

	n := &Notification{}
	n.Status = strings.ToLower(firstString(scopes, "payment_status", "status"))
	n.EventID = firstString(scopes, "id")

	if id, ok := fromMetadata(scopes); ok {
		n.TenantID, n.Strategy = id, StrategyMetadata
	} else if id, ok := fromExternalID(scopes, opts.ExternalIDPrefix); ok {
		n.TenantID, n.Strategy = id, StrategyExternalID
	} else if id, ok := fromEmail(scopes); ok {
		n.TenantID, n.Strategy = id, StrategyEmail
	}
	return n, nil
}

func firstString(scopes []object, keys ...string) string {
	for _, s := range scopes {
		for _, k := range keys {
			if v := s.str(k); v != "" {
				return v
			}
		}
	}
	return ""
}

func fromMetadata(scopes []object) (int64, bool) {
	for _, s := range scopes {
		meta, ok := s["metadata"].(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := parseID(object(meta).str("tenant_id")); ok {
			return id, true
		}
	}
	return 0, false
}

func fromExternalID(scopes []object, prefix string) (int64, bool) {
	if prefix == "" {
		prefix = "tenant_"
	}
	for _, s := range scopes {
		for _, f := range externalIDFields {
			v := s.str(f)
			if !strings.HasPrefix(v, prefix) {
				continue
			}
			if id, ok := parseID(strings.TrimPrefix(v, prefix)); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func fromEmail(scopes []object) (int64, bool) {
	for _, s := range scopes {
		for _, f := range emailFields {
			email := s.path(f)
			at := strings.IndexByte(email, '@')
			if at <= 0 {
				continue
			}
			m := emailTenantID.FindStringSubmatch(email[:at])
			if m == nil {
				continue
			}
			if id, ok := parseID(m[1]); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// str returns the value of key as a string; numbers are formatted
func (o object) str(key string) string {
	switch v := o[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// path resolves a dotted key such as "payer.email"
func (o object) path(key string) string {
	parts := strings.Split(key, ".")
	cur := o
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			return ""
		}
		cur = object(next)
	}
	return cur.str(parts[len(parts)-1])
}
