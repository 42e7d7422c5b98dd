package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownIP is used when a request carries no client address headers
const UnknownIP = "unknown"

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then "unknown"
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return UnknownIP
}
