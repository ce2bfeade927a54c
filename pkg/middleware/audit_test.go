package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	mu    sync.Mutex
	calls [][]interface{}
	err   error
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	return r.err
}

func (r *recordingExecer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestActionForMethod(t *testing.T) {
	tests := []struct {
		method   string
		expected AuditAction
	}{
		{http.MethodPost, AuditActionCreate},
		{http.MethodPut, AuditActionUpdate},
		{http.MethodPatch, AuditActionUpdate},
		{http.MethodDelete, AuditActionDelete},
		{http.MethodGet, AuditActionView},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.expected, actionForMethod(tt.method))
		})
	}
}

func TestResourceFromPath(t *testing.T) {
	assert.Equal(t, "tenant", resourceFromPath("/admin/create-tenant"))
	assert.Equal(t, "master", resourceFromPath("/webhook/master"))
	assert.Equal(t, "unknown", resourceFromPath("/"))
}

func TestMaskSensitiveFields(t *testing.T) {
	input := map[string]interface{}{
		"name":                   "Acme",
		"bot_credential":         "123:abc",
		"payment_gateway_secret": "shh",
		"nested": map[string]interface{}{
			"api_key": "sk-1",
			"plain":   "ok",
		},
	}

	got := maskSensitiveFields(input, []string{"secret", "credential", "api_key"})
	assert.Equal(t, "Acme", got["name"])
	assert.Equal(t, "[REDACTED]", got["bot_credential"])
	assert.Equal(t, "[REDACTED]", got["payment_gateway_secret"])

	nested := got["nested"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", nested["api_key"])
	assert.Equal(t, "ok", nested["plain"])

	assert.Nil(t, maskSensitiveFields(nil, nil))
}

func newAuditRouter(al *AuditLogger) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextKeySubject, "ops")
		c.Set(ContextKeyRole, RoleAdmin)
		c.Next()
	})
	router.Use(AuditMiddleware(al))
	router.POST("/admin/create-tenant", func(c *gin.Context) {
		SetAuditResourceID(c, "42")
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})
	router.POST("/admin/quiet", func(c *gin.Context) {
		SkipAudit(c)
		c.Status(http.StatusOK)
	})
	router.GET("/admin/tenants", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuditMiddleware_CapturesMutation(t *testing.T) {
	al := NewAuditLogger(&AuditConfig{FlushInterval: 10 * time.Millisecond, EnableRequestBody: true,
		SensitiveFields: []string{"credential"}, SkipMethods: []string{"GET"}})
	al.SetTestMode(true)
	router := newAuditRouter(al)

	body := bytes.NewBufferString(`{"name":"Acme","bot_credential":"123:abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/create-tenant", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, al.Close())

	entries := al.GetTestEntries()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, AuditActionCreate, entry.Action)
	assert.Equal(t, "ops", entry.Subject)
	assert.Equal(t, RoleAdmin, entry.Role)
	assert.Equal(t, "tenant", entry.ResourceType)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "42", *entry.ResourceID)
	assert.Equal(t, http.StatusCreated, entry.Status)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, "Acme", entry.Body["name"])
	assert.Equal(t, "[REDACTED]", entry.Body["bot_credential"])
}

func TestAuditMiddleware_SkipsReadsAndMarkedRequests(t *testing.T) {
	al := NewAuditLogger(&AuditConfig{SkipMethods: []string{"GET"}})
	al.SetTestMode(true)
	router := newAuditRouter(al)

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/admin/tenants", nil),
		httptest.NewRequest(http.MethodPost, "/admin/quiet", nil),
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	require.NoError(t, al.Close())
	assert.Empty(t, al.GetTestEntries())
}

func TestAuditLogger_FlushToExecer(t *testing.T) {
	db := &recordingExecer{err: errors.New("insert failed")}
	var errCount int
	var mu sync.Mutex
	cfg := DefaultAuditConfig(db)
	cfg.OnError = func(err error) {
		mu.Lock()
		errCount++
		mu.Unlock()
	}
	al := NewAuditLogger(cfg)

	al.Log(&AuditEntry{ID: "a", Action: AuditActionCreate, CreatedAt: time.Now()})
	al.Log(&AuditEntry{ID: "b", Action: AuditActionUpdate, Metadata: map[string]interface{}{"k": "v"}, CreatedAt: time.Now()})
	require.NoError(t, al.Close())
	// second Close is a no-op
	require.NoError(t, al.Close())

	assert.Equal(t, 2, db.count())
	mu.Lock()
	assert.Equal(t, 2, errCount)
	mu.Unlock()
}
