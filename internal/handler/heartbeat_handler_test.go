package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/middleware"
	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type heartbeatProcessorMock struct {
	verdict   *service.HeartbeatVerdict
	err       error
	lastInput service.HeartbeatInput
	called    bool
}

func (m *heartbeatProcessorMock) Process(_ context.Context, input service.HeartbeatInput) (*service.HeartbeatVerdict, error) {
	m.called = true
	m.lastInput = input
	return m.verdict, m.err
}

func heartbeatBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := map[string]interface{}{
		"attendanceId": "att-1",
		"sessionId":    "sess-1",
		"latitude":     37.4607,
		"longitude":    126.9524,
		"accuracy":     15,
		"timestamp":    "2025-03-10T09:15:00Z",
		"isBackground": false,
		"source":       "fused",
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func TestHeartbeatHandlerUsesCallerIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &heartbeatProcessorMock{
		verdict: &service.HeartbeatVerdict{LocationValid: true, Distance: 12, AllowedRadius: 100},
	}
	handler := NewHeartbeatHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/heartbeat", heartbeatBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Process(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.called)
	assert.Equal(t, "stu-1", mockSvc.lastInput.StudentID, "identity must come from the token, not the payload")
	assert.Equal(t, "att-1", mockSvc.lastInput.AttendanceID)
}

func TestHeartbeatHandlerMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHeartbeatHandler(&heartbeatProcessorMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/heartbeat", heartbeatBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Process(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHeartbeatHandlerInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHeartbeatHandler(&heartbeatProcessorMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/heartbeat", bytes.NewBufferString(`{"sessionId":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Process(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeartbeatHandlerLowAccuracyShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &heartbeatProcessorMock{
		verdict: &service.HeartbeatVerdict{LowAccuracy: true, AllowedRadius: 100},
	}
	handler := NewHeartbeatHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/heartbeat", heartbeatBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Process(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Success       bool  `json:"success"`
			LowAccuracy   *bool `json:"lowAccuracy"`
			LocationValid *bool `json:"locationValid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Success)
	require.NotNil(t, envelope.Data.LowAccuracy)
	assert.True(t, *envelope.Data.LowAccuracy)
	assert.Nil(t, envelope.Data.LocationValid, "skipped evaluation must not report validity")
}

func TestHeartbeatHandlerServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &heartbeatProcessorMock{err: appErrors.ErrNotFound}
	handler := NewHeartbeatHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/heartbeat", heartbeatBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Process(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
