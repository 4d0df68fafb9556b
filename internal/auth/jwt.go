// Package auth issues the signed tokens that let a player reclaim a seat
// and that guard the admin HTTP endpoints.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
	ErrForbidden    = errors.New("token does not grant this role")
)

// Roles carried in tokens.
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// Claims holds the JWT payload.
type Claims struct {
	PlayerID string `json:"player_id,omitempty"`
	GameID   string `json:"game_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles token creation and validation.
type JWTManager struct {
	secret      []byte
	seatExpiry  time.Duration
	adminExpiry time.Duration
}

// NewJWTManager creates a JWTManager with the given secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret:      []byte(secret),
		seatExpiry:  7 * 24 * time.Hour,
		adminExpiry: 12 * time.Hour,
	}
}

func (m *JWTManager) sign(claims *Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Issue creates a reconnect token for a seat in one game.
func (m *JWTManager) Issue(playerID, gameID string) (string, error) {
	return m.sign(&Claims{
		PlayerID:         playerID,
		GameID:           gameID,
		Role:             RolePlayer,
		RegisteredClaims: jwt.RegisteredClaims{Subject: playerID},
	}, m.seatExpiry)
}

// Verify checks a reconnect token and returns the seat it was issued for.
func (m *JWTManager) Verify(token string) (playerID, gameID string, err error) {
	claims, err := m.ValidateToken(token)
	if err != nil {
		return "", "", err
	}
	if claims.Role != RolePlayer || claims.PlayerID == "" {
		return "", "", ErrForbidden
	}
	return claims.PlayerID, claims.GameID, nil
}

// IssueAdmin creates a short-lived operator token.
func (m *JWTManager) IssueAdmin(name string) (string, error) {
	return m.sign(&Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: name},
	}, m.adminExpiry)
}

// ValidateToken parses and validates a JWT string, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
