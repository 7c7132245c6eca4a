package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/dto"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

type heartbeatProcessor interface {
	Process(ctx context.Context, input service.HeartbeatInput) (*service.HeartbeatVerdict, error)
}

// HeartbeatHandler exposes the periodic location report endpoint.
type HeartbeatHandler struct {
	heartbeats heartbeatProcessor
}

// NewHeartbeatHandler constructs the handler.
func NewHeartbeatHandler(heartbeats heartbeatProcessor) *HeartbeatHandler {
	return &HeartbeatHandler{heartbeats: heartbeats}
}

// Process godoc
// @Summary Process a tracking heartbeat
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.HeartbeatRequest true "Heartbeat payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/heartbeat [post]
func (h *HeartbeatHandler) Process(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid heartbeat payload"))
		return
	}

	verdict, err := h.heartbeats.Process(c.Request.Context(), service.HeartbeatInput{
		AttendanceID:   req.AttendanceID,
		SessionID:      req.SessionID,
		StudentID:      claims.UserID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.Accuracy,
		Timestamp:      req.Timestamp,
		IsBackground:   req.IsBackground,
		Source:         req.Source,
		TrackingMode:   req.TrackingMode,
		Environment:    req.Environment,
		Confidence:     req.Confidence,
		GPSWeight:      req.GPSWeight,
		PDRWeight:      req.PDRWeight,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, buildHeartbeatResponse(req, verdict), nil)
}

func buildHeartbeatResponse(req dto.HeartbeatRequest, verdict *service.HeartbeatVerdict) dto.HeartbeatResponse {
	resp := dto.HeartbeatResponse{
		Success:      true,
		SessionEnded: verdict.SessionEnded,
		Metadata: dto.HeartbeatMetadata{
			Source:       req.Source,
			IsBackground: req.IsBackground,
			Timestamp:    req.Timestamp,
			Confidence:   req.Confidence,
			GPSWeight:    req.GPSWeight,
			PDRWeight:    req.PDRWeight,
		},
	}
	if verdict.SessionEnded {
		return resp
	}
	if verdict.LowAccuracy {
		lowAccuracy := true
		resp.LowAccuracy = &lowAccuracy
		return resp
	}
	locationValid := verdict.LocationValid
	distance := verdict.Distance
	allowedRadius := verdict.AllowedRadius
	statusChanged := verdict.StatusChanged
	resp.LocationValid = &locationValid
	resp.Distance = &distance
	resp.AllowedRadius = &allowedRadius
	resp.StatusChanged = &statusChanged
	resp.NewStatus = verdict.NewStatus
	return resp
}
