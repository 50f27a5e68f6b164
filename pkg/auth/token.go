// Package auth issues and validates the bearer tokens staff present to the
// clinic API. Tokens carry the tenant, facility and role the request acts as.
package auth

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	TenantID    string   `json:"tenant_id"`
	FacilityID  string   `json:"facility_id,omitempty"`
}

// Actor converts the claims into the acting staff member
func (c *Claims) Actor() *actor.Actor {
	return &actor.Actor{
		ID:          c.UserID,
		Name:        c.Name,
		Email:       c.Email,
		TenantID:    c.TenantID,
		FacilityID:  c.FacilityID,
		Role:        c.Role,
		Permissions: c.Permissions,
	}
}

// StaffInfo contains what goes into an access token
type StaffInfo struct {
	ID          string
	Email       string
	Name        string
	Role        string
	Permissions []string
	TenantID    string
	FacilityID  string
}

// Token is an issued access token
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
}

// Manager handles JWT operations
type Manager struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg, now: time.Now}
}

// GenerateAccessToken signs an HS256 access token for the staff member
func (m *Manager) GenerateAccessToken(staff *StaffInfo) (*Token, error) {
	if staff.TenantID == "" {
		return nil, errors.BadRequest("tenant is required")
	}

	now := m.now()
	expiry := now.Add(m.config.AccessExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   staff.ID,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID:      staff.ID,
		Email:       staff.Email,
		Name:        staff.Name,
		Role:        staff.Role,
		Permissions: staff.Permissions,
		TenantID:    staff.TenantID,
		FacilityID:  staff.FacilityID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.Secret))
	if err != nil {
		return nil, err
	}

	return &Token{
		AccessToken: signed,
		ExpiresAt:   expiry,
		TokenType:   "Bearer",
	}, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(m.config.Issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TenantID == "" || claims.UserID == "" {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}

// GetTokenExpiry returns the access token expiry duration
func (m *Manager) GetTokenExpiry() time.Duration {
	return m.config.AccessExpiry
}
