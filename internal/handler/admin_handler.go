package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/botfleet/internal/dto"
	"github.com/prohmpiriya/botfleet/internal/service"
	"github.com/prohmpiriya/botfleet/pkg/middleware"
	"github.com/prohmpiriya/botfleet/pkg/response"
	"github.com/prohmpiriya/botfleet/pkg/telemetry"
)

// RunningChecker reports whether a tenant has a live instance
type RunningChecker interface {
	IsRunning(tenantID int64) bool
}

// AdminHandler handles tenant provisioning HTTP requests
type AdminHandler struct {
	tenantService service.TenantService
	running       RunningChecker
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(tenantService service.TenantService, running RunningChecker) *AdminHandler {
	return &AdminHandler{tenantService: tenantService, running: running}
}

// CreateTenant handles tenant creation
// POST /admin/create-tenant
func (h *AdminHandler) CreateTenant(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.create_tenant")
	defer span.End()

	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	tenant, err := h.tenantService.Provision(ctx, &req)
	if tenant != nil {
		middleware.SetAuditResourceID(c, strconv.FormatInt(tenant.ID, 10))
		middleware.SetAuditMetadata(c, map[string]interface{}{
			"tenant_name": tenant.Name,
			"running":     h.running.IsRunning(tenant.ID),
		})
	}
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, service.ErrInstanceStart) && tenant != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithDetails(response.ErrCodeInstanceStart, err.Error(),
				map[string]string{"tenant_id": strconv.FormatInt(tenant.ID, 10)}))
			return
		}
		c.JSON(http.StatusBadRequest, response.Error(response.ErrCodeProvisionFailed, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(dto.NewTenantResponse(tenant, h.running.IsRunning(tenant.ID))))
}
