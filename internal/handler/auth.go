package handler

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const OperatorKeyHeader = "X-API-Key"

// OperatorAuth guards operator endpoints with an API key checked against a
// bcrypt hash. An empty hash leaves the endpoints open.
func OperatorAuth(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		hash := []byte(keyHash)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := operatorKey(r)
			if key == "" || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func operatorKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(OperatorKeyHeader)); k != "" {
		return k
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
