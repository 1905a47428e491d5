package utils

import (
	"testing"
	"time"

	"spray_ledger/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	u := domain.User{ID: "u-1", Username: "ada", Email: "ada@example.com", Role: domain.RoleAdmin}
	tok, err := GenerateJWT(u, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, u, claims.User())
}

func TestParseJWTRejects(t *testing.T) {
	u := domain.User{ID: "u-1", Username: "ada"}
	expired, err := GenerateJWT(u, "secret", -time.Minute)
	require.NoError(t, err)
	valid, err := GenerateJWT(u, "secret", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u-1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":      expired,
		"wrong secret": valid + "x",
		"no expiry":    noExpiry,
		"alg none":     none,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJWT(tok, "secret")
			assert.Error(t, err)
		})
	}
}

func TestClaimsDefaultRole(t *testing.T) {
	c := &Claims{UserID: "u-2", Username: "bola"}
	assert.Equal(t, domain.RoleUser, c.User().Role)
}
