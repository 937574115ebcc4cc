package http

import (
	"net/http"
	"strconv"
	"time"

	"example.com/fdms/services/admin/internal/core"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	services *core.ServiceRegistry
}

func NewHandlers(services *core.ServiceRegistry) *Handlers {
	return &Handlers{services: services}
}

// Health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// Auth handlers

func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": core.CodeValidation})
		return
	}

	result, err := h.services.Auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Stats handler

func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.services.Query.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Company handlers

func (h *Handlers) ListCompanies(c *gin.Context) {
	rows, total, err := h.services.Query.ListTaxpayers(c.Request.Context(), core.TaxpayerFilter{
		Search: c.Query("search"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "rows": rows})
}

func (h *Handlers) GetCompany(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	taxpayer, err := h.services.Taxpayers.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taxpayer)
}

func (h *Handlers) CreateCompany(c *gin.Context) {
	var req core.OnboardTaxpayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": core.CodeValidation})
		return
	}

	taxpayer, err := h.services.Taxpayers.Onboard(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, taxpayer)
}

func (h *Handlers) UpdateCompany(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req core.UpdateTaxpayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": core.CodeValidation})
		return
	}

	taxpayer, err := h.services.Taxpayers.Update(c.Request.Context(), id, req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taxpayer)
}

func (h *Handlers) SetCompanyStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": core.CodeValidation})
		return
	}

	taxpayer, err := h.services.Taxpayers.SetStatus(c.Request.Context(), id, req.Status, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taxpayer)
}

func (h *Handlers) ListCompanyDevices(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	rows, total, err := h.services.Query.ListDevices(c.Request.Context(), core.DeviceFilter{
		TaxpayerID: id,
		Page:       pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "rows": rows})
}

// Device handlers

func (h *Handlers) ListDevices(c *gin.Context) {
	rows, total, err := h.services.Query.ListDevices(c.Request.Context(), core.DeviceFilter{
		Page: pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "rows": rows})
}

// ProvisionDevice is the one response that includes the activation key.
func (h *Handlers) ProvisionDevice(c *gin.Context) {
	var req core.ProvisionDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": core.CodeValidation})
		return
	}

	device, err := h.services.Provisioning.Provision(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *Handlers) SetDeviceStatus(c *gin.Context) {
	deviceID, ok := int64Param(c, "device_id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": core.CodeValidation})
		return
	}

	device, err := h.services.Devices.SetStatus(c.Request.Context(), deviceID, req.Status, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *Handlers) SetDeviceMode(c *gin.Context) {
	deviceID, ok := int64Param(c, "device_id")
	if !ok {
		return
	}

	var req struct {
		Mode *int `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Mode == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required", "code": core.CodeValidation})
		return
	}

	device, err := h.services.Devices.SetMode(c.Request.Context(), deviceID, *req.Mode, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// Cross-tenant view handlers

func (h *Handlers) ListFiscalDays(c *gin.Context) {
	rows, total, err := h.services.Query.ListFiscalDays(c.Request.Context(), core.FiscalDayFilter{
		TaxpayerID: uintQuery(c, "taxpayerID"),
		DeviceID:   int64Query(c, "deviceID"),
		Page:       pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "rows": rows})
}

func (h *Handlers) ListReceipts(c *gin.Context) {
	filter := core.ReceiptFilter{
		TaxpayerID: uintQuery(c, "taxpayerID"),
		DeviceID:   int64Query(c, "deviceID"),
		Page:       pageFromQuery(c),
	}

	var ok bool
	if filter.From, ok = timeQuery(c, "from"); !ok {
		return
	}
	if filter.To, ok = timeQuery(c, "to"); !ok {
		return
	}

	rows, total, err := h.services.Query.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "rows": rows})
}

func (h *Handlers) ListAuditLogs(c *gin.Context) {
	rows, total, err := h.services.Query.ListAuditLogs(c.Request.Context(), core.AuditFilter{
		EntityType: c.Query("entityType"),
		EntityID:   int64Query(c, "entityID"),
		Page:       pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "rows": rows})
}

// --- Request parsing helpers ---

func pageFromQuery(c *gin.Context) core.Page {
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return core.Page{Offset: offset, Limit: limit}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": core.CodeValidation})
		return 0, false
	}
	return uint(v), true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": core.CodeValidation})
		return 0, false
	}
	return v, true
}

func uintQuery(c *gin.Context, name string) uint {
	v, _ := strconv.ParseUint(c.Query(name), 10, 32)
	return uint(v)
}

func int64Query(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}

func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339", "code": core.CodeValidation})
		return nil, false
	}
	return &t, true
}
