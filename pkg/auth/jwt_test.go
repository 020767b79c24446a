package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestJWT(secret string) *JWTManager {
	m := NewJWTManager(secret, time.Hour)
	m.now = func() time.Time { return issuedAt }
	return m
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := newTestJWT("session-secret")

	token, err := m.Generate("editor-1", "editor@vidioai.dev", "editor")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "editor-1", claims.UserID)
	assert.Equal(t, "editor-1", claims.Subject)
	assert.Equal(t, "editor@vidioai.dev", claims.Email)
	assert.Equal(t, "editor", claims.Role)
	assert.Equal(t, issuer, claims.Issuer)
	assert.True(t, claims.ExpiresAt.Time.Equal(issuedAt.Add(time.Hour)))
}

func TestJWTManager_Expiry(t *testing.T) {
	m := newTestJWT("session-secret")
	token, err := m.Generate("editor-1", "", "")
	require.NoError(t, err)

	m.now = func() time.Time { return issuedAt.Add(59 * time.Minute) }
	_, err = m.Verify(token)
	require.NoError(t, err)

	m.now = func() time.Time { return issuedAt.Add(61 * time.Minute) }
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := newTestJWT("session-secret")

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
	}

	forged, err := newTestJWT("other-secret").Generate("editor-1", "", "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"other secret", forged},
		{"foreign issuer", sign(&Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: valid.ExpiresAt,
		}}, jwt.SigningMethodHS256, []byte("session-secret"))},
		{"missing user", sign(&Claims{RegisteredClaims: valid}, jwt.SigningMethodHS256, []byte("session-secret"))},
		{"unsigned", sign(&Claims{UserID: "u", RegisteredClaims: valid}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"other algorithm", sign(&Claims{UserID: "u", RegisteredClaims: valid}, jwt.SigningMethodHS512, []byte("session-secret"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTManager_Refresh(t *testing.T) {
	m := newTestJWT("session-secret")
	token, err := m.Generate("editor-1", "editor@vidioai.dev", "admin")
	require.NoError(t, err)

	m.now = func() time.Time { return issuedAt.Add(50 * time.Minute) }
	refreshed, err := m.Refresh(token)
	require.NoError(t, err)

	claims, err := m.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.ExpiresAt.Time.Equal(issuedAt.Add(110*time.Minute)))

	_, err = m.Refresh("bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
