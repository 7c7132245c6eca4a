package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusAbsent    AttendanceStatus = "absent"
	AttendanceStatusPresent   AttendanceStatus = "present"
	AttendanceStatusLate      AttendanceStatus = "late"
	AttendanceStatusLeftEarly AttendanceStatus = "left_early"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusAbsent, AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusLeftEarly:
		return true
	default:
		return false
	}
}

// ActivelyTracked reports whether heartbeats should still drive the record.
func (s AttendanceStatus) ActivelyTracked() bool {
	return s == AttendanceStatusPresent
}

// AttendanceRecord is one student's attendance for one session. Created at
// check-in; mutated only by the heartbeat processor (status, check-out) or
// session finalization.
type AttendanceRecord struct {
	ID               string           `db:"id" json:"id"`
	SessionID        string           `db:"session_id" json:"session_id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	Status           AttendanceStatus `db:"status" json:"status"`
	CheckInTime      *time.Time       `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime     *time.Time       `db:"check_out_time" json:"check_out_time,omitempty"`
	LocationVerified bool             `db:"location_verified" json:"location_verified"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// LocationLogEntry is one row of the append-only heartbeat audit trail.
// Rows are not written when the reported accuracy exceeds the skip
// threshold: an inaccurate fix is no signal, not a violation.
type LocationLogEntry struct {
	ID             string    `db:"id" json:"id"`
	AttendanceID   string    `db:"attendance_id" json:"attendance_id"`
	Latitude       float64   `db:"latitude" json:"latitude"`
	Longitude      float64   `db:"longitude" json:"longitude"`
	AccuracyMeters float64   `db:"accuracy_m" json:"accuracy_meters"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
	IsValid        bool      `db:"is_valid" json:"is_valid"`
	TrackingMode   *string   `db:"tracking_mode" json:"tracking_mode,omitempty"`
	Environment    *string   `db:"environment" json:"environment,omitempty"`
	Confidence     *float64  `db:"confidence" json:"confidence,omitempty"`
	GPSWeight      *float64  `db:"gps_weight" json:"gps_weight,omitempty"`
	PDRWeight      *float64  `db:"pdr_weight" json:"pdr_weight,omitempty"`
}

// AttendanceReportRow is one line of a finalized session report.
type AttendanceReportRow struct {
	StudentID    string           `db:"student_id" json:"student_id"`
	Status       AttendanceStatus `db:"status" json:"status"`
	CheckInTime  *time.Time       `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime *time.Time       `db:"check_out_time" json:"check_out_time,omitempty"`
}
