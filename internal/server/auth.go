package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type subjectKey struct{}

var errNoToken = errors.New("no token provided")

// requireBearer verifies HS256 bearer tokens. An empty secret lets every
// request through.
func requireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		key := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseBearer(r.Header.Get("Authorization"), key)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", err)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(header string, key []byte) (*jwt.RegisteredClaims, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, errNoToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// SubjectFromContext returns the authenticated token subject, if any.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}
