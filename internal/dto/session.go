package dto

import (
	"time"

	"github.com/noah-isme/presence-api/internal/models"
)

// SessionStatusResponse combines the post-lifecycle session state with its
// live attendance summary.
type SessionStatusResponse struct {
	ID        string                `json:"id"`
	CourseID  string                `json:"courseId"`
	Status    models.SessionStatus  `json:"status"`
	CreatedAt time.Time             `json:"createdAt"`
	AutoEndAt time.Time             `json:"autoEndAt"`
	Geofence  *models.GeofenceSpec  `json:"geofence,omitempty"`
	Summary   models.SessionSummary `json:"summary"`
}

// CheckInCodeResponse carries a freshly minted QR payload.
type CheckInCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}
