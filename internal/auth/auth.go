// Package auth validates the bearer credential presented at connect time.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// JWT verifies HMAC-signed bearer tokens.
type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the identity it carries.
// Failures map to CodeUnauthenticated so the connection layer can reject
// uniformly.
func (j *JWT) Verify(tokenString string) (domain.User, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return j.secret, nil
		},
	)
	if err != nil {
		return domain.User{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"), errors.WithCause(err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.User{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token claims"))
	}

	return domain.User{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}

// Sign issues a token for the user, valid for ttl.
func (j *JWT) Sign(u domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   u.UserID,
		Username: u.Username,
		Email:    u.Email,
	})

	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
