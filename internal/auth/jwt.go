// Package auth provides bearer-token validation for API requests.
// Token issuance lives in the account service; this package only verifies
// tokens and exposes the authenticated user id to handlers.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sentra-safety/sentra/internal/middleware"
)

// Default leeway for token validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// Claims represents the JWT claims issued by the account service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// JWTService validates JWT access tokens.
// Supports dual-key rotation: tokens are validated with either
// currentSecret or previousSecret so secrets can rotate without downtime.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewJWTService creates a new JWTService with the given secret.
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
	}
}

// NewJWTServiceWithRotation creates a JWTService that also accepts tokens
// signed with the previous secret. Set previousSecret to empty string if no
// rotation is in progress.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// ValidateToken parses and validates a token string, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.validateWithSecret(tokenString, s.currentSecret)
	if err == nil {
		return claims, nil
	}
	if s.previousSecret != nil {
		if claims, prevErr := s.validateWithSecret(tokenString, s.previousSecret); prevErr == nil {
			return claims, nil
		}
	}
	return nil, err
}

func (s *JWTService) validateWithSecret(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs an access token for a user. Production token issuance is
// external; this exists for tests and local development.
func (s *JWTService) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.currentSecret)
}

// RequireAuth is a middleware that rejects requests without a valid bearer
// token and stores the authenticated user id in the request context.
// It writes a bare 401; the API layer's error envelope is not used here to
// avoid an import cycle.
func RequireAuth(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				// Also accept ?token= for WebSocket clients that cannot set headers
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				ctx := middleware.SetErrorCode(r.Context(), "auth_failed")
				middleware.UpdateResponseContext(w, ctx)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := svc.ValidateToken(tokenString)
			if err != nil {
				ctx := middleware.SetErrorCode(r.Context(), "auth_failed")
				middleware.UpdateResponseContext(w, ctx)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := middleware.SetUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
