package util

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWithHeaders(t *testing.T, trustForwarded bool, req *http.Request, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	SecurityHeaders(trustForwarded)(handler).ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeadersDefaults(t *testing.T) {
	rec := serveWithHeaders(t, false, httptest.NewRequest(http.MethodGet, "/api/cart", nil), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("did not expect HSTS for plain http, got %q", got)
	}
}

func TestSecurityHeadersHandlerOverridesCache(t *testing.T) {
	rec := serveWithHeaders(t, false, httptest.NewRequest(http.MethodGet, "/api/products/p1/image", nil), func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.WriteHeader(http.StatusOK)
	})
	if got := rec.Header().Get("Cache-Control"); got != "private, max-age=300" {
		t.Fatalf("handler cache header lost: %q", got)
	}
}

func TestSecurityHeadersHSTS(t *testing.T) {
	noop := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")
	if got := serveWithHeaders(t, false, forwarded, noop).Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("untrusted forwarded proto set HSTS: %q", got)
	}
	if got := serveWithHeaders(t, true, forwarded, noop).Header().Get("Strict-Transport-Security"); got != hstsValue {
		t.Fatalf("trusted forwarded proto: HSTS = %q", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	if got := serveWithHeaders(t, false, direct, noop).Header().Get("Strict-Transport-Security"); got != hstsValue {
		t.Fatalf("tls request: HSTS = %q", got)
	}
}
