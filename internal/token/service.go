// Package token mints and validates the signed access/refresh token
// envelopes used by the SDS session layer.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Token kinds carried in the "kind" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Validation failures. ErrExpired is distinguished from ErrInvalid so callers
// can offer a refresh instead of a hard reject.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Claims is the self-describing token payload.
type Claims struct {
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// Service signs and verifies token pairs with distinct secrets per kind.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	logger        *zap.Logger
}

// NewService creates a token service. Lifetimes fall back to 30 minutes and
// 7 days when non-positive.
func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) (*Service, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("access and refresh secrets must differ")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	return &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		logger:        logger.With(zap.String("engine", "token")),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// MintPair issues a fresh access/refresh token pair for a user.
func (s *Service) MintPair(userID int64, username string) (access, refresh string, accessExp, refreshExp time.Time, err error) {
	now := time.Now()
	accessExp = now.Add(s.accessTTL)
	refreshExp = now.Add(s.refreshTTL)

	access, err = s.mint(userID, username, KindAccess, now, accessExp)
	if err != nil {
		return "", "", time.Time{}, time.Time{}, err
	}
	refresh, err = s.mint(userID, username, KindRefresh, now, refreshExp)
	if err != nil {
		return "", "", time.Time{}, time.Time{}, err
	}
	return access, refresh, accessExp, refreshExp, nil
}

func (s *Service) mint(userID int64, username, kind string, now, exp time.Time) (string, error) {
	claims := &Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// A fresh jti makes every mint unique even within the same
			// second, so rotation always replaces the stored tokens.
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "sds-core",
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secretFor(kind))
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err), zap.String("kind", kind))
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *Service) secretFor(kind string) []byte {
	if kind == KindRefresh {
		return s.refreshSecret
	}
	return s.accessSecret
}

// Validate verifies signature, kind and expiry of a token of the expected
// kind and returns its claims.
func (s *Service) Validate(raw, expectedKind string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretFor(expectedKind), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		s.logger.Debug("Token validation failed", zap.Error(err))
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Kind != expectedKind {
		s.logger.Warn("Token kind mismatch",
			zap.String("expected", expectedKind),
			zap.String("got", claims.Kind))
		return nil, ErrInvalid
	}
	return claims, nil
}

// Decode parses claims without verifying the signature. Diagnostic use only.
func (s *Service) Decode(raw string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}
