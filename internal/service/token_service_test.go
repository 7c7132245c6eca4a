package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

const testSecret = "test-secret"

func newTokenService(t *testing.T) *TokenService {
	t.Helper()
	return NewTokenService(TokenConfig{
		Secret:         testSecret,
		CheckInCodeTTL: 5 * time.Minute,
		Issuer:         "presence-api",
	}, nil)
}

func signAccessToken(t *testing.T, claims *models.JWTClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenHappyPath(t *testing.T) {
	svc := newTokenService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	signed := signAccessToken(t, &models.JWTClaims{
		UserID: "stu-1",
		Role:   models.RoleStudent,
		Email:  "student@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "stu-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}, testSecret)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := newTokenService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	signed := signAccessToken(t, &models.JWTClaims{
		UserID: "stu-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}, testSecret)

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := newTokenService(t)
	now := time.Now().UTC()

	signed := signAccessToken(t, &models.JWTClaims{
		UserID: "stu-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}, "other-secret")

	_, err := svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestCheckInCodeRoundTrip(t *testing.T) {
	svc := newTokenService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	code, expiresAt, err := svc.IssueCheckInCode("sess-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), expiresAt)

	require.NoError(t, svc.ValidateCheckInCode(code, "sess-1"))
}

func TestCheckInCodeSessionMismatch(t *testing.T) {
	svc := newTokenService(t)

	code, _, err := svc.IssueCheckInCode("sess-1")
	require.NoError(t, err)

	err = svc.ValidateCheckInCode(code, "sess-2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestCheckInCodeExpired(t *testing.T) {
	svc := newTokenService(t)
	issuedAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	code, _, err := svc.IssueCheckInCode("sess-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(6 * time.Minute) }
	assert.Error(t, svc.ValidateCheckInCode(code, "sess-1"))
}
