package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims are the claims carried by service tokens the REST backend
// signs (HS256, shared secret) to call the administrative ingress.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Service string `json:"service"`
}

// ParseServiceToken validates a backend-issued service token.
func ParseServiceToken(tokenString string, secret []byte) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ServiceClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
