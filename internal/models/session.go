package models

import "time"

// SessionStatus represents the lifecycle state of a class session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEnded     SessionStatus = "ended"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusActive, SessionStatusEnded:
		return true
	default:
		return false
	}
}

// Session is one class meeting. Ended is terminal: once reached, attendance
// records under the session are frozen except for the single finalization
// pass that stamps check-out times.
type Session struct {
	ID             string        `db:"id" json:"id"`
	CourseID       string        `db:"course_id" json:"course_id"`
	Status         SessionStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	GeofenceLat    *float64      `db:"geofence_lat" json:"geofence_lat,omitempty"`
	GeofenceLng    *float64      `db:"geofence_lng" json:"geofence_lng,omitempty"`
	GeofenceRadius *float64      `db:"geofence_radius_m" json:"geofence_radius_m,omitempty"`
	GeofenceLabel  *string       `db:"geofence_label" json:"geofence_label,omitempty"`
}

// OverrideGeofence returns the session-level geofence when fully configured.
func (s *Session) OverrideGeofence() *GeofenceSpec {
	if s.GeofenceLat == nil || s.GeofenceLng == nil || s.GeofenceRadius == nil {
		return nil
	}
	spec := &GeofenceSpec{
		CenterLatitude:  *s.GeofenceLat,
		CenterLongitude: *s.GeofenceLng,
		RadiusMeters:    *s.GeofenceRadius,
	}
	if s.GeofenceLabel != nil {
		spec.DisplayName = *s.GeofenceLabel
	}
	return spec
}

// CourseGeofence is the course-level default zone row.
type CourseGeofence struct {
	CourseID       string   `db:"course_id" json:"course_id"`
	GeofenceLat    *float64 `db:"geofence_lat" json:"geofence_lat,omitempty"`
	GeofenceLng    *float64 `db:"geofence_lng" json:"geofence_lng,omitempty"`
	GeofenceRadius *float64 `db:"geofence_radius_m" json:"geofence_radius_m,omitempty"`
	GeofenceLabel  *string  `db:"geofence_label" json:"geofence_label,omitempty"`
}

// Spec converts the row into a GeofenceSpec when fully configured.
func (c *CourseGeofence) Spec() *GeofenceSpec {
	if c == nil || c.GeofenceLat == nil || c.GeofenceLng == nil || c.GeofenceRadius == nil {
		return nil
	}
	spec := &GeofenceSpec{
		CenterLatitude:  *c.GeofenceLat,
		CenterLongitude: *c.GeofenceLng,
		RadiusMeters:    *c.GeofenceRadius,
	}
	if c.GeofenceLabel != nil {
		spec.DisplayName = *c.GeofenceLabel
	}
	return spec
}

// SessionSummary aggregates final attendance counts for an ended session.
type SessionSummary struct {
	Total          int `json:"total"`
	Present        int `json:"present"`
	Late           int `json:"late"`
	Absent         int `json:"absent"`
	LeftEarly      int `json:"left_early"`
	AttendanceRate int `json:"attendance_rate"`
}
