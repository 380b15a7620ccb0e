package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify a hub client. Room restricts the client to one room's
// topic; empty means any room.
type Claims struct {
	ParticipantID string `json:"participant_id"`
	Room          string `json:"room,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

var errNoToken = errors.New("no token")

// IssueToken signs an HS256 token for participant.
func IssueToken(secret, participant, room string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ParticipantID: participant,
		Room:          room,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// bearer reads the token from the Authorization header, or from the token
// query parameter for browsers that cannot set headers on a WebSocket.
func bearer(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Split(h, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", errNoToken
}

// JWTAuth rejects requests without a valid token. With an empty secret
// every request passes and clients are anonymous.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			tokenString, err := bearer(r)
			if err != nil {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}
			claims, err := ParseToken(secret, tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// OriginFilter refuses browser requests from origins outside allowed. An
// empty list or "*" allows every origin.
func OriginFilter(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
