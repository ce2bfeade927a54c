package domain

import "time"

// SessionVersion is the current session schema version
const SessionVersion = 2

// MasterTenantID scopes sessions of the master control plane
const MasterTenantID int64 = 0

// MessagingInstance is one linked third-party chat session
type MessagingInstance struct {
	InstanceID  string `json:"instance_id"`
	Token       string `json:"linked_account_token"`
	DisplayName string `json:"display_name"`
	Connected   bool   `json:"connected"`
}

// Session is the conversational state of one (tenant, user) pair
type Session struct {
	Version            int                 `json:"version"`
	Stage              Stage               `json:"stage"`
	MessagingInstances []MessagingInstance `json:"messaging_instances"`
	Temp               map[string]string   `json:"temp"`
	Report             map[string]any      `json:"report"`
}

// NewSession returns the default session of a first contact
func NewSession() *Session {
	return &Session{
		Version:            SessionVersion,
		Stage:              StageStart,
		MessagingInstances: []MessagingInstance{},
		Temp:               map[string]string{},
		Report:             map[string]any{},
	}
}

// Clone returns a deep copy, including nested Report maps and slices
func (s *Session) Clone() *Session {
	c := &Session{
		Version:            s.Version,
		Stage:              s.Stage,
		MessagingInstances: make([]MessagingInstance, len(s.MessagingInstances)),
		Temp:               make(map[string]string, len(s.Temp)),
		Report:             make(map[string]any, len(s.Report)),
	}
	copy(c.MessagingInstances, s.MessagingInstances)
	for k, v := range s.Temp {
		c.Temp[k] = v
	}
	for k, v := range s.Report {
		c.Report[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, inner := range t {
			l[i] = cloneValue(inner)
		}
		return l
	default:
		return v
	}
}

// ClearTemp drops all wizard scratch values
func (s *Session) ClearTemp() {
	s.Temp = map[string]string{}
}

// SessionRecord is the durable row of a session
type SessionRecord struct {
	TenantID  int64
	UserID    string
	Data      []byte
	UpdatedAt time.Time
}
