package models

// GeofenceSpec is a circular allowed zone for one session. It may come from
// a session-level override or the course-level default; callers resolve the
// precedence (session wins) before evaluation.
type GeofenceSpec struct {
	CenterLatitude  float64 `json:"center_latitude"`
	CenterLongitude float64 `json:"center_longitude"`
	RadiusMeters    float64 `json:"radius_meters"`
	DisplayName     string  `json:"display_name,omitempty"`
}

// GeofenceEvaluation is the outcome of testing a position against a spec.
// EffectiveDistance always equals Distance: reported GPS accuracy must never
// shrink the distance used for the containment decision, otherwise a client
// could inflate its accuracy value to pass the check from outside the zone.
type GeofenceEvaluation struct {
	Distance          float64 `json:"distance"`
	EffectiveDistance float64 `json:"effective_distance"`
	AllowedRadius     float64 `json:"allowed_radius"`
	IsValid           bool    `json:"is_valid"`
}
