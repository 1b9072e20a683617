package auth

import (
	"net/http"
	"strings"
)

// TokenFromHeader extracts a resume token from a standard "Bearer <token>"
// Authorization header. WebSocket clients use it to authenticate during the
// upgrade instead of sending a resume frame.
func TokenFromHeader(h http.Header) (string, bool) {
	value := h.Get("Authorization")
	if value == "" {
		return "", false
	}
	token, found := strings.CutPrefix(value, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
