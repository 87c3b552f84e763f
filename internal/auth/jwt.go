// Package auth resolves the user behind a request from a bearer token.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrNoUserClaim  = errors.New("token carries no user id")
)

// userClaims are tried in order; id_usuario is what the legacy API issues.
var userClaims = []string{"id", "id_usuario", "sub"}

type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate checks an HS256 token and returns the user it was issued for.
func (v *Validator) Validate(tokenString string) (domain.UserID, error) {
	if tokenString == "" {
		return 0, ErrMissingToken
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return userFromClaims(claims)
}

// Issue signs a token for uid. Used by tests and local tooling.
func (v *Validator) Issue(uid domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  int64(uid),
		"sub": uid.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func userFromClaims(claims jwt.MapClaims) (domain.UserID, error) {
	for _, key := range userClaims {
		raw, ok := claims[key]
		if !ok {
			continue
		}
		var id int64
		switch val := raw.(type) {
		case float64:
			id = int64(val)
		case string:
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				continue
			}
			id = n
		default:
			continue
		}
		if uid := domain.UserID(id); uid.Valid() {
			return uid, nil
		}
	}
	return 0, ErrNoUserClaim
}
