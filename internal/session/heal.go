package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/domain"
)

const legacyTempPrefix = "temp_"

// Decode parses a stored blob and heals it. Top-level temp_* keys written
// by version 1 sessions are folded into Temp.
func Decode(raw []byte) (*domain.Session, error) {
	sess := &domain.Session{}
	if len(raw) == 0 {
		Heal(sess)
		return sess, nil
	}
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if sess.Version < 2 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			for k, v := range fields {
				if !strings.HasPrefix(k, legacyTempPrefix) {
					continue
				}
				var s string
				if json.Unmarshal(v, &s) != nil {
					continue
				}
				if sess.Temp == nil {
					sess.Temp = map[string]string{}
				}
				sess.Temp[strings.TrimPrefix(k, legacyTempPrefix)] = s
			}
		}
	}

	Heal(sess)
	return sess, nil
}

// Heal fills every missing substructure with its default and raises the version
func Heal(sess *domain.Session) {
	if sess.Stage == "" {
		sess.Stage = domain.StageReady
	}
	if sess.MessagingInstances == nil {
		sess.MessagingInstances = []domain.MessagingInstance{}
	}
	if sess.Temp == nil {
		sess.Temp = map[string]string{}
	}
	if sess.Report == nil {
		sess.Report = map[string]any{}
	}
	if sess.Version < domain.SessionVersion {
		sess.Version = domain.SessionVersion
	}
}
