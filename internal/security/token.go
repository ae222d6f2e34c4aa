package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateBearerToken mints an opaque bearer secret and the sha256 hash
// under which it is persisted. The secret itself is only ever returned to
// the client.
func GenerateBearerToken() (string, []byte, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate bearer token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashBearerToken(token), nil
}

func HashBearerToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// Action token purposes. Action tokens are short-lived signed tokens sent
// out of band (mail) for password reset and email verification; the jti is
// consumed once so a token cannot be replayed.
const (
	ActionPasswordReset = "password_reset"
	ActionVerifyEmail   = "verify_email"
)

type ActionClaims struct {
	UserID string `json:"uid"`
	Action string `json:"act"`
	jwt.RegisteredClaims
}

func GenerateActionToken(secret string, userID string, action string, jti string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActionClaims{
		UserID: userID,
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign action token: %w", err)
	}
	return signed, nil
}

func ParseActionToken(tokenStr string, secret string, action string) (*ActionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ActionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Action != action {
		return nil, fmt.Errorf("wrong token action")
	}
	return claims, nil
}
