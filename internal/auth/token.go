package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is how long a session token issued by GenerateJWT stays valid.
const TokenTTL = 24 * time.Hour

// AppClaims defines the custom claims we include in session tokens.
// UserID identifies the user; the admin bit is deliberately not carried here
// and is looked up on every request instead.
type AppClaims struct {
	UserID int64 `json:"userID"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed HS256 token for a given user ID and returns it
// together with its expiry.
func GenerateJWT(userID int64, secret string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(TokenTTL)

	claims := &AppClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateJWT parses and validates a token string, checking its signature and
// expiry. If valid, it returns the custom claims.
func ValidateJWT(tokenString string, secret string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
