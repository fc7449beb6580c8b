package util

import (
	"net/http"
	"strings"
)

// storefrontHeaders apply to every response. Cache-Control is a default that
// image handlers replace.
var storefrontHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the storefront response headers. HSTS is sent on TLS
// connections, and on X-Forwarded-Proto: https only when trustForwarded is
// set, matching how ClientIP treats X-Forwarded-For.
func SecurityHeaders(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range storefrontHeaders {
				h.Set(kv[0], kv[1])
			}
			if servedOverHTTPS(r, trustForwarded) {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func servedOverHTTPS(r *http.Request, trustForwarded bool) bool {
	if r.TLS != nil {
		return true
	}
	return trustForwarded && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
