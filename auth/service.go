package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/umlhub/umlhub/internal/config"
)

// Sentinel errors returned by Authenticate. Callers reject the connection
// attempt on any of them; no session is created.
var (
	ErrMissingToken = errors.New("authentication token required")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrUserInactive = errors.New("user not found or inactive")
)

// Claims represents the JWT claims carried by an access token
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Service provides token validation and user resolution for the
// collaboration engine. Token issuance belongs to the identity provider;
// this service only verifies what it is handed.
type Service struct {
	config    config.JWTConfig
	users     UserStore
	blacklist *TokenBlacklist
}

// NewService creates a new authentication service. The blacklist is
// optional; pass nil to skip revocation checks.
func NewService(cfg config.JWTConfig, users UserStore, blacklist *TokenBlacklist) *Service {
	return &Service{
		config:    cfg,
		users:     users,
		blacklist: blacklist,
	}
}

// ValidateToken parses and verifies a JWT access token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Authenticate verifies a bearer credential and resolves it to an active
// user. This is the single entry point used at websocket handshake time.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*User, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if s.blacklist != nil && claims.ID != "" {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("blacklist check failed: %w", err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInactive, err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrUserInactive
	}

	return user, nil
}

// GenerateToken creates a signed access token for a user. Used by dev
// tooling and tests; production tokens come from the identity provider.
func (s *Service) GenerateToken(user User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Name:  user.DisplayName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.config.ExpirationSeconds) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// RevokeToken adds a token's JTI to the blacklist until its expiry
func (s *Service) RevokeToken(ctx context.Context, tokenString string) error {
	if s.blacklist == nil {
		return errors.New("token blacklist not configured")
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return errors.New("token has no jti claim")
	}

	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			// Already expired, nothing to revoke
			return nil
		}
	}

	return s.blacklist.Add(ctx, claims.ID, ttl)
}
