package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/fdms/services/admin/config"
	"example.com/fdms/services/admin/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	router   *gin.Engine
	services *core.ServiceRegistry
	token    string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(core.Models()...); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	services, err := core.NewServiceRegistry(core.ServiceConfig{
		Store:  core.NewDataStore(db),
		Logger: logger,
		Auth: config.AuthConfig{
			SessionTTL: time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Gateway: config.GatewayConfig{},
	})
	if err != nil {
		t.Fatalf("build service registry: %v", err)
	}

	if _, err := services.Auth.CreateUser(context.Background(), "admin", "correct-horse", core.RoleAdmin); err != nil {
		t.Fatalf("create admin user: %v", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	SetupRoutes(router, NewHandlers(services), services.Auth, logger)

	return &testServer{router: router, services: services}
}

// do performs a request against the in-memory router, attaching the stored
// session token when one exists.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/api/admin/login", map[string]string{
		"username": "admin",
		"password": "correct-horse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if result.Token == "" {
		t.Fatal("login returned no token")
	}
	ts.token = result.Token
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	ts := setupTestServer(t)

	// No token.
	if w := ts.do(t, http.MethodGet, "/api/admin/companies", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// Garbage token.
	ts.token = "not-a-real-token"
	if w := ts.do(t, http.MethodGet, "/api/admin/companies", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	// Wrong password at login.
	ts.token = ""
	w := ts.do(t, http.MethodPost, "/api/admin/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", w.Code)
	}
}

func TestAdminWorkflow(t *testing.T) {
	ts := setupTestServer(t)
	ts.login(t)

	// Onboard a company.
	w := ts.do(t, http.MethodPost, "/api/admin/companies", map[string]interface{}{
		"tin":  "1234567890",
		"name": "ACME Retail Ltd",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create company: %d %s", w.Code, w.Body.String())
	}
	var company core.Taxpayer
	decodeJSON(t, w, &company)
	if company.Status != core.TaxpayerStatusActive {
		t.Fatalf("expected Active company, got %s", company.Status)
	}

	// Duplicate TIN conflicts.
	w = ts.do(t, http.MethodPost, "/api/admin/companies", map[string]interface{}{
		"tin":  "1234567890",
		"name": "Impostor",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate tin, got %d", w.Code)
	}

	// Provision a device; the activation key appears in this response only.
	w = ts.do(t, http.MethodPost, "/api/admin/devices", map[string]interface{}{
		"deviceID":       5001,
		"taxpayerID":     company.ID,
		"deviceSerialNo": "SN-5001",
		"branchName":     "Head Office",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("provision device: %d %s", w.Code, w.Body.String())
	}
	var provisioned struct {
		DeviceID      int64  `json:"device_id"`
		ActivationKey string `json:"activation_key"`
	}
	decodeJSON(t, w, &provisioned)
	if provisioned.ActivationKey == "" {
		t.Fatal("provisioning response missing activation key")
	}

	// Later device reads never include the key.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/admin/companies/%d/devices", company.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list company devices: %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte(provisioned.ActivationKey)) {
		t.Fatalf("device listing leaked the activation key: %s", w.Body.String())
	}
	var listing struct {
		Total int64         `json:"total"`
		Rows  []core.Device `json:"rows"`
	}
	decodeJSON(t, w, &listing)
	if listing.Total != 1 || len(listing.Rows) != 1 {
		t.Fatalf("expected one device, got %+v", listing)
	}

	// Block, then revoke; the terminal state rejects further moves.
	w = ts.do(t, http.MethodPatch, "/api/admin/devices/5001/status", map[string]string{"status": "Blocked"})
	if w.Code != http.StatusOK {
		t.Fatalf("block device: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPatch, "/api/admin/devices/5001/status", map[string]string{"status": "Revoked"})
	if w.Code != http.StatusOK {
		t.Fatalf("revoke device: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPatch, "/api/admin/devices/5001/status", map[string]string{"status": "Active"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for revoked device, got %d", w.Code)
	}
	var failure struct {
		Code string `json:"code"`
	}
	decodeJSON(t, w, &failure)
	if failure.Code != core.CodeTerminalState {
		t.Fatalf("expected TERMINAL_STATE, got %q", failure.Code)
	}

	// Company status toggle.
	w = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/companies/%d/status", company.ID), map[string]string{"status": "Inactive"})
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate company: %d %s", w.Code, w.Body.String())
	}

	// Stats reflect what just happened.
	w = ts.do(t, http.MethodGet, "/api/admin/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get stats: %d", w.Code)
	}
	var stats core.SystemStats
	decodeJSON(t, w, &stats)
	if stats.TotalCompanies != 1 || stats.ActiveCompanies != 0 {
		t.Fatalf("unexpected company stats: %+v", stats)
	}
	if stats.TotalDevices != 1 || stats.ActiveDevices != 0 {
		t.Fatalf("unexpected device stats: %+v", stats)
	}

	// The audit trail covers every mutation above plus the login.
	w = ts.do(t, http.MethodGet, "/api/admin/audit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list audit logs: %d", w.Code)
	}
	var audit struct {
		Total int64 `json:"total"`
	}
	decodeJSON(t, w, &audit)
	if audit.Total != 6 {
		t.Fatalf("expected 6 audit entries, got %d", audit.Total)
	}
}

func TestRequestValidation(t *testing.T) {
	ts := setupTestServer(t)
	ts.login(t)

	// Bad TIN.
	w := ts.do(t, http.MethodPost, "/api/admin/companies", map[string]interface{}{
		"tin":  "12",
		"name": "Short TIN",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad tin, got %d", w.Code)
	}

	// Unknown company.
	if w := ts.do(t, http.MethodGet, "/api/admin/companies/999", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown company, got %d", w.Code)
	}

	// Non-numeric path parameter.
	if w := ts.do(t, http.MethodGet, "/api/admin/companies/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", w.Code)
	}

	// Missing mode body.
	if w := ts.do(t, http.MethodPatch, "/api/admin/devices/5001/mode", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing mode, got %d", w.Code)
	}

	// Malformed time filter.
	if w := ts.do(t, http.MethodGet, "/api/admin/receipts?from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed time filter, got %d", w.Code)
	}

	// Empty lists return an empty rows array, not null.
	w = ts.do(t, http.MethodGet, "/api/admin/fiscal-days", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list fiscal days: %d", w.Code)
	}
	var listing struct {
		Total int64           `json:"total"`
		Rows  json.RawMessage `json:"rows"`
	}
	decodeJSON(t, w, &listing)
	if string(listing.Rows) != "[]" {
		t.Fatalf("expected empty rows array, got %s", listing.Rows)
	}
}
