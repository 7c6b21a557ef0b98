package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
)

const (
	AccessTokenType   = "access"
	RealtimeTokenType = "realtime"
)

// ValidateAndGetClaims checks signature and expiry and returns the claims.
func ValidateAndGetClaims(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// UserID extracts the caller identity from "sub", falling back to "id".
func UserID(claims jwt.MapClaims) (string, error) {
	for _, key := range []string{"sub", "id"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", v), nil
		}
	}
	return "", errors.New("token carries no user id")
}

func generate(userID, tokenType, secret string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": tokenType,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "signing token")
	}
	return signed, expiresAt, nil
}

func GenerateAccessToken(userID, secret string, ttl time.Duration) (string, error) {
	token, _, err := generate(userID, AccessTokenType, secret, ttl, time.Now())
	return token, err
}

// GenerateRealtimeToken issues the short-lived token a client presents when
// opening a websocket.
func GenerateRealtimeToken(userID, secret string, ttl time.Duration) (string, time.Time, error) {
	return generate(userID, RealtimeTokenType, secret, ttl, time.Now())
}

// ValidateRealtimeToken rejects anything but an unexpired realtime token.
func ValidateRealtimeToken(tokenString, secret string) (string, error) {
	claims, err := ValidateAndGetClaims(tokenString, secret)
	if err != nil {
		return "", err
	}
	if claims["type"] != RealtimeTokenType {
		return "", errors.New("not a realtime token")
	}
	return UserID(claims)
}
