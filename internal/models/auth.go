package models

import "github.com/golang-jwt/jwt/v5"

// UserRole distinguishes professors from students on verified tokens.
type UserRole string

const (
	RoleStudent   UserRole = "student"
	RoleProfessor UserRole = "professor"
	RoleAdmin     UserRole = "admin"
)

// JWTClaims represents the JWT payload for access tokens. Token issuance
// lives outside this service; only verification happens here.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// CheckInCodeClaims is the payload carried by a time-boxed QR check-in code.
type CheckInCodeClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}
