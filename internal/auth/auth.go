// Package auth issues and validates the operator tokens protecting the
// mutating admin routes.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "fabrika"

var ErrTokenInvalid = errors.New("token invalid")

type OperatorClaims struct {
	Name string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(secret []byte, name, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(secret []byte, tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
