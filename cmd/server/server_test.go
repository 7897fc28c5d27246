package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"defendo-server/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupServer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Test with valid configuration
	cfg := config.DefaultConfig()
	cfg.Server.Port = 8080
	cfg.Database.DSN = "file:setup-test.db?mode=memory&cache=shared"

	srv, err := SetupServer(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, srv)
	assert.Equal(t, ":8080", srv.Addr)
	srv.Close()

	// Test with empty configuration
	srv, err = SetupServer(nil)
	assert.Error(t, err)
	assert.Nil(t, srv)

	// Test with invalid port
	cfg = config.DefaultConfig()
	cfg.Server.Port = -1
	srv, err = SetupServer(cfg)
	assert.Error(t, err)
	assert.Nil(t, srv)
}

func TestHandleHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", handleHealthCheck)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, "defendo-server", response["service"])
	assert.NotEmpty(t, response["time"])
}

// apiClient drives the assembled server handler through the full HTTP stack
type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *apiClient) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func TestServer_SOSLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Database.DSN = "file:lifecycle-test.db?mode=memory&cache=shared"

	srv, err := SetupServer(cfg)
	require.NoError(t, err)
	defer srv.Close()

	client := &apiClient{t: t, handler: srv.Handler}

	// Register and log in
	w := client.do("POST", "/api/auth/register", map[string]string{
		"username": "lifecycleuser",
		"email":    "lifecycle@example.com",
		"password": "password123",
		"phone":    "+15550001111",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = client.do("POST", "/api/auth/login", map[string]string{
		"username": "lifecycleuser",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.Token)

	// Protected routes reject requests without a token
	w = client.do("POST", "/api/sos/activate", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	client.token = loginResp.Token

	// Add an emergency contact
	w = client.do("POST", "/api/contacts", map[string]interface{}{
		"name":       "Alice",
		"phone":      "+15550002222",
		"is_primary": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Activation needs a location fix first
	w = client.do("POST", "/api/sos/activate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = client.do("POST", "/api/location", map[string]interface{}{
		"latitude":  37.7749,
		"longitude": -122.4194,
		"address":   "24 Grove St",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	// Activate
	w = client.do("POST", "/api/sos/activate", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var activateResp struct {
		AlertID string `json:"alert_id"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activateResp))
	require.NotEmpty(t, activateResp.AlertID)
	assert.Equal(t, "active", activateResp.Status)

	// A second activation conflicts
	w = client.do("POST", "/api/sos/activate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The alert is queryable while live
	w = client.do("GET", "/api/sos/current", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = client.do("GET", "/api/sos/remaining", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var remainingResp struct {
		RemainingSeconds int64 `json:"remaining_seconds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &remainingResp))
	assert.Greater(t, remainingResp.RemainingSeconds, int64(0))
	assert.LessOrEqual(t, remainingResp.RemainingSeconds, int64(300))

	// Cancel
	w = client.do("POST", "/api/sos/cancel", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = client.do("GET", "/api/sos/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The cancelled alert stays in history with its notification log
	w = client.do("GET", "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var historyResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &historyResp))
	assert.Equal(t, 1, historyResp.Count)

	w = client.do("GET", "/api/alerts/"+activateResp.AlertID+"/notifications", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// A cancelled alert cannot be resolved
	w = client.do("POST", "/api/alerts/"+activateResp.AlertID+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
