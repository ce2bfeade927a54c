package di

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/botfleet/internal/handler"
	"github.com/prohmpiriya/botfleet/internal/lifecycle/mocks"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/internal/session"
	"github.com/prohmpiriya/botfleet/pkg/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("SESSION_CACHE_BACKEND", "memory")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("JWT_ENABLED", "false")
	t.Setenv("MASTER_ENABLED", "true")
	t.Setenv("MASTER_BOT_CREDENTIAL", "master-cred")
	t.Setenv("MASTER_OPERATOR_ID", "1")
	t.Setenv("PAYMENT_SECRET_KEY", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewContainer_MemoryWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	factory := mocks.NewFactory("bad-cred")

	c, err := NewContainer(context.Background(), &ContainerConfig{Config: memoryConfig(t), Connect: factory.Connect})
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.IsType(t, &repository.MemoryTenantRepository{}, c.TenantRepo)
	assert.IsType(t, &session.MemoryCache{}, c.SessionCache)
	require.NotNil(t, c.Master)
	require.NotNil(t, c.WebhookLimiter)

	router := handler.NewRouter(c.RouterConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/create-tenant",
		bytes.NewBufferString(`{"name":"Acme","bot_credential":"good-cred","owner_identifier":"900"}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, c.Manager.IsRunning(1))
	assert.Equal(t, 1, c.Manager.Count())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/create-tenant",
		bytes.NewBufferString(`{"name":"Broken","bot_credential":"bad-cred"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INSTANCE_START_FAILED")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	c.Manager.Shutdown(context.Background())
	assert.Equal(t, 0, c.Manager.Count())

	started, err := c.Manager.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started, "the rejected credential fails again")
	c.Manager.Shutdown(context.Background())
}

func TestNewContainer_RequiresConfig(t *testing.T) {
	_, err := NewContainer(context.Background(), nil)
	assert.Error(t, err)
}
