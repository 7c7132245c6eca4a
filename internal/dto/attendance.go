package dto

import (
	"time"

	"github.com/noah-isme/presence-api/internal/models"
)

// CheckInRequest captures POST /attendance/check-in payload.
type CheckInRequest struct {
	SessionID string  `json:"sessionId" binding:"required"`
	Code      string  `json:"code" binding:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// AttendanceResponse exposes one attendance record.
type AttendanceResponse struct {
	ID               string                  `json:"id"`
	SessionID        string                  `json:"sessionId"`
	StudentID        string                  `json:"studentId"`
	Status           models.AttendanceStatus `json:"status"`
	CheckInTime      *time.Time              `json:"checkInTime,omitempty"`
	CheckOutTime     *time.Time              `json:"checkOutTime,omitempty"`
	LocationVerified bool                    `json:"locationVerified"`
}

// NewAttendanceResponse maps a record into its wire shape.
func NewAttendanceResponse(record *models.AttendanceRecord) AttendanceResponse {
	return AttendanceResponse{
		ID:               record.ID,
		SessionID:        record.SessionID,
		StudentID:        record.StudentID,
		Status:           record.Status,
		CheckInTime:      record.CheckInTime,
		CheckOutTime:     record.CheckOutTime,
		LocationVerified: record.LocationVerified,
	}
}
