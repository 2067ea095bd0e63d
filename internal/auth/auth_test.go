package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))
	assert.NotContains(t, hash, "correct horse")
	assert.True(t, CheckPasswordHash("correct horse", hash))
	assert.False(t, CheckPasswordHash("correct horsE", hash))
}

func TestHashPasswordIsSalted(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCheckPasswordHashMalformed(t *testing.T) {
	for _, stored := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!$aGFzaA",
	} {
		assert.False(t, CheckPasswordHash("anything", stored), stored)
	}
}

func TestDecodeHashErrors(t *testing.T) {
	_, _, _, err := decodeHash("$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, _, _, err = decodeHash("nope")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTRoundTrip(t *testing.T) {
	token, expiresAt, err := GenerateJWT(42, "secret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), expiresAt, time.Minute)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTWrongSecret(t *testing.T) {
	token, _, err := GenerateJWT(1, "secret")
	require.NoError(t, err)

	_, err = ValidateJWT(token, "other")
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	claims := &AppClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTRequiresExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &AppClaims{UserID: 7}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret")
	assert.Error(t, err)
}
