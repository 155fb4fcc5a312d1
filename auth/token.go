package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var zeroTime time.Time

// peekTokenExpiry reads the exp claim from a JWT access token without
// verifying the signature. The value only schedules proactive rotation;
// authorization decisions always go to the backend, so an attacker who
// forges the claim gains nothing but a mistimed refresh.
func peekTokenExpiry(token string) time.Time {
	if token == "" {
		return zeroTime
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return zeroTime
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return zeroTime
	}
	return exp.Time
}
