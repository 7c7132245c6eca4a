package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/dto"
	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

type sessionLifecycle interface {
	EnsureCurrent(ctx context.Context, sessionID string) (*models.Session, error)
	End(ctx context.Context, sessionID string) (*models.Session, error)
	AutoEndAt(session *models.Session) time.Time
	Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

type sessionGeofence interface {
	ResolveSpec(ctx context.Context, sessionID string) (*models.GeofenceSpec, error)
}

type checkInCodeIssuer interface {
	IssueCheckInCode(sessionID string) (string, time.Time, error)
}

// SessionHandler exposes session status and lifecycle endpoints.
type SessionHandler struct {
	lifecycle sessionLifecycle
	geofence  sessionGeofence
	codes     checkInCodeIssuer
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(lifecycle sessionLifecycle, geofence sessionGeofence, codes checkInCodeIssuer) *SessionHandler {
	return &SessionHandler{lifecycle: lifecycle, geofence: geofence, codes: codes}
}

// Status godoc
// @Summary Session status with live attendance summary
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/status [get]
func (h *SessionHandler) Status(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.lifecycle.EnsureCurrent(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	summary, err := h.lifecycle.Summary(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.SessionStatusResponse{
		ID:        session.ID,
		CourseID:  session.CourseID,
		Status:    session.Status,
		CreatedAt: session.CreatedAt,
		AutoEndAt: h.lifecycle.AutoEndAt(session),
		Summary:   *summary,
	}
	if spec, err := h.geofence.ResolveSpec(c.Request.Context(), sessionID); err == nil {
		resp.Geofence = spec
	} else if !isConfigMissing(err) {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, resp, nil)
}

// End godoc
// @Summary End a session and finalize attendance
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	session, err := h.lifecycle.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	summary, err := h.lifecycle.Summary(c.Request.Context(), session.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.SessionStatusResponse{
		ID:        session.ID,
		CourseID:  session.CourseID,
		Status:    session.Status,
		CreatedAt: session.CreatedAt,
		AutoEndAt: h.lifecycle.AutoEndAt(session),
		Summary:   *summary,
	}, nil)
}

// CheckInCode godoc
// @Summary Issue a time-boxed QR check-in code
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/check-in-code [post]
func (h *SessionHandler) CheckInCode(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.lifecycle.EnsureCurrent(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if session.Status == models.SessionStatusEnded {
		response.Error(c, appErrors.ErrSessionEnded)
		return
	}

	code, expiresAt, err := h.codes.IssueCheckInCode(sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CheckInCodeResponse{Code: code, ExpiresAt: expiresAt}, nil)
}

func isConfigMissing(err error) bool {
	if errors.Is(err, appErrors.ErrConfigMissing) {
		return true
	}
	appErr := appErrors.FromError(err)
	return appErr != nil && appErr.Code == appErrors.ErrConfigMissing.Code
}
