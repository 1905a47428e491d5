package utils

import (
	"errors" // Error values
	"time"   // Time for token expiration

	"spray_ledger/internal/domain" // Identity projection

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// Claims issued by the identity service
type Claims struct {
	UserID               string `json:"user_id"`         // Identity id
	Username             string `json:"username"`        // Unique handle
	Email                string `json:"email,omitempty"` // Contact address
	Role                 string `json:"role,omitempty"`  // user or admin
	jwt.RegisteredClaims // Standard JWT claims
}

// User projects the claims onto the local user model
func (c *Claims) User() domain.User {
	role := c.Role
	if role == "" {
		role = domain.RoleUser // Tokens without a role are plain users
	}
	return domain.User{ID: c.UserID, Username: c.Username, Email: c.Email, Role: role}
}

// GenerateJWT signs a token for u valid for ttl
func GenerateJWT(u domain.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   u.ID,       // Identity id
		Username: u.Username, // Handle
		Email:    u.Email,    // Email
		Role:     u.Role,     // Role
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Expiry
			IssuedAt:  jwt.NewNumericDate(now),          // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates an HS256 token string
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject // Fall back to sub
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
