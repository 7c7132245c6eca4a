package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/dto"
	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

type attendanceUseCases interface {
	CheckIn(ctx context.Context, studentID string, req service.CheckInRequest) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, studentID, attendanceID string) (*models.AttendanceRecord, error)
}

// AttendanceHandler exposes check-in and check-out endpoints.
type AttendanceHandler struct {
	attendance attendanceUseCases
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(attendance attendanceUseCases) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// CheckIn godoc
// @Summary Check in to a session with a QR code
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload"))
		return
	}

	record, err := h.attendance.CheckIn(c.Request.Context(), claims.UserID, service.CheckInRequest{
		SessionID:      req.SessionID,
		Code:           req.Code,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.Accuracy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewAttendanceResponse(record))
}

// CheckOut godoc
// @Summary Check out of a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Attendance ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/check-out [post]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.attendance.CheckOut(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAttendanceResponse(record), nil)
}
