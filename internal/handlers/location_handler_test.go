package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"defendo-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// fakeReporter records location fixes handed to it
type fakeReporter struct {
	mu      sync.Mutex
	reports []models.Location
	userIDs []string
}

func (f *fakeReporter) Report(userID string, loc models.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userIDs = append(f.userIDs, userID)
	f.reports = append(f.reports, loc)
}

func setupTestLocationHandler(userID string) (*fakeReporter, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	reporter := &fakeReporter{}
	handler := NewLocationHandler(reporter)

	router := gin.New()
	router.POST("/api/location", authAs(userID), handler.Report)
	return reporter, router
}

func TestLocationHandler_Report(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
		expectReport   bool
	}{
		{
			name: "valid fix",
			body: map[string]interface{}{
				"latitude":  37.7749,
				"longitude": -122.4194,
				"accuracy":  12.5,
				"address":   "24 Grove St",
				"timestamp": 1714827845,
			},
			expectedStatus: http.StatusNoContent,
			expectReport:   true,
		},
		{
			name: "null island is a valid fix",
			body: map[string]interface{}{
				"latitude":  0.0,
				"longitude": 0.0,
			},
			expectedStatus: http.StatusNoContent,
			expectReport:   true,
		},
		{
			name: "latitude out of range",
			body: map[string]interface{}{
				"latitude":  91.0,
				"longitude": 0.0,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "longitude out of range",
			body: map[string]interface{}{
				"latitude":  0.0,
				"longitude": -200.0,
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter, router := setupTestLocationHandler("user-1")

			body, _ := json.Marshal(tt.body)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/location", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectReport {
				assert.Len(t, reporter.reports, 1)
				assert.Equal(t, "user-1", reporter.userIDs[0])
			} else {
				assert.Empty(t, reporter.reports)
			}
		})
	}
}

func TestLocationHandler_Report_FieldsPreserved(t *testing.T) {
	reporter, router := setupTestLocationHandler("user-1")

	body, _ := json.Marshal(map[string]interface{}{
		"latitude":  51.5074,
		"longitude": -0.1278,
		"accuracy":  8.0,
		"address":   "Trafalgar Square",
		"timestamp": 1714827845,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/location", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	loc := reporter.reports[0]
	assert.Equal(t, 51.5074, loc.Latitude)
	assert.Equal(t, -0.1278, loc.Longitude)
	assert.Equal(t, 8.0, loc.Accuracy)
	assert.Equal(t, "Trafalgar Square", loc.Address)
	assert.Equal(t, int64(1714827845), loc.CapturedAt)
}

func TestLocationHandler_Report_Unauthenticated(t *testing.T) {
	reporter, router := setupTestLocationHandler("")

	body, _ := json.Marshal(map[string]interface{}{"latitude": 1.0, "longitude": 1.0})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/location", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, reporter.reports)
}
