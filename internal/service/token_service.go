package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

// TokenConfig defines verification and check-in code settings.
type TokenConfig struct {
	Secret         string
	CheckInCodeTTL time.Duration
	Issuer         string
}

// TokenService verifies access tokens issued by the identity service and
// mints the short-lived check-in codes professors display as QR payloads.
type TokenService struct {
	config TokenConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenService constructs the token service.
func NewTokenService(config TokenConfig, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckInCodeTTL <= 0 {
		config.CheckInCodeTTL = 5 * time.Minute
	}
	return &TokenService{config: config, logger: logger, now: time.Now}
}

// ValidateToken parses and validates an access token.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// IssueCheckInCode mints a time-boxed code bound to one session.
func (s *TokenService) IssueCheckInCode(sessionID string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.CheckInCodeTTL)
	claims := &models.CheckInCodeClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign check-in code")
	}
	return signed, expiresAt, nil
}

// ValidateCheckInCode verifies a code and confirms it targets sessionID.
func (s *TokenService) ValidateCheckInCode(code, sessionID string) error {
	token, err := jwt.ParseWithClaims(code, &models.CheckInCodeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired check-in code")
	}

	claims, ok := token.Claims.(*models.CheckInCodeClaims)
	if !ok || !token.Valid {
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid check-in code claims")
	}
	if claims.SessionID != sessionID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "check-in code does not match session")
	}
	return nil
}
