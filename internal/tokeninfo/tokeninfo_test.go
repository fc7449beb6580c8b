package tokeninfo

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("not-the-backend-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseReadsClaimsWithoutKey(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signHS256(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	claims, ok := Parse(token)
	if !ok {
		t.Fatalf("expected token to parse")
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if !claims.ExpiresAt.Equal(exp.UTC()) {
		t.Fatalf("expiresAt = %v, want %v", claims.ExpiresAt, exp.UTC())
	}
}

func TestParseRejectsOpaqueTokens(t *testing.T) {
	for _, token := range []string{"", "opaque-token", "a.b", "a.b.c"} {
		if _, ok := Parse(token); ok {
			t.Fatalf("token %q should not parse", token)
		}
	}
}

func TestInspectorExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insp := NewInspector(time.Minute)
	insp.now = func() time.Time { return now }

	expired := signHS256(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-2 * time.Minute))})
	withinLeeway := signHS256(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Second))})
	valid := signHS256(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	noExp := signHS256(t, jwt.RegisteredClaims{Subject: "user-1"})

	if !insp.Expired(expired) {
		t.Fatalf("expired token not detected")
	}
	if insp.Expired(withinLeeway) {
		t.Fatalf("token within leeway treated as expired")
	}
	if insp.Expired(valid) {
		t.Fatalf("valid token treated as expired")
	}
	if insp.Expired(noExp) {
		t.Fatalf("token without exp treated as expired")
	}
	if insp.Expired("opaque-session-token") {
		t.Fatalf("opaque token treated as expired")
	}
}
