package dto

import (
	"time"

	"github.com/noah-isme/presence-api/internal/models"
)

// HeartbeatRequest captures POST /attendance/heartbeat payload.
type HeartbeatRequest struct {
	AttendanceID string    `json:"attendanceId" binding:"required"`
	SessionID    string    `json:"sessionId" binding:"required"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Accuracy     float64   `json:"accuracy"`
	Timestamp    time.Time `json:"timestamp"`
	IsBackground bool      `json:"isBackground"`
	Source       string    `json:"source"`
	TrackingMode *string   `json:"trackingMode,omitempty"`
	Environment  *string   `json:"environment,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
	GPSWeight    *float64  `json:"gpsWeight,omitempty"`
	PDRWeight    *float64  `json:"pdrWeight,omitempty"`
}

// HeartbeatMetadata echoes reporting context back to the client.
type HeartbeatMetadata struct {
	Source       string    `json:"source"`
	IsBackground bool      `json:"isBackground"`
	Timestamp    time.Time `json:"timestamp"`
	Confidence   *float64  `json:"confidence,omitempty"`
	GPSWeight    *float64  `json:"gpsWeight,omitempty"`
	PDRWeight    *float64  `json:"pdrWeight,omitempty"`
}

// HeartbeatResponse is the verdict returned for one heartbeat.
type HeartbeatResponse struct {
	Success       bool                     `json:"success"`
	LocationValid *bool                    `json:"locationValid,omitempty"`
	Distance      *float64                 `json:"distance,omitempty"`
	AllowedRadius *float64                 `json:"allowedRadius,omitempty"`
	SessionEnded  bool                     `json:"sessionEnded"`
	StatusChanged *bool                    `json:"statusChanged,omitempty"`
	NewStatus     *models.AttendanceStatus `json:"newStatus,omitempty"`
	LowAccuracy   *bool                    `json:"lowAccuracy,omitempty"`
	Metadata      HeartbeatMetadata        `json:"metadata"`
}
