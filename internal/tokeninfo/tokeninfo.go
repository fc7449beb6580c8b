// Package tokeninfo reads claims from bearer tokens without verifying them.
// Signatures are checked by the backend; the shell only uses the expiry to
// skip a network call for tokens that cannot succeed.
package tokeninfo

import (
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Claims is the subset of registered claims the shell looks at.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Parse decodes a JWT payload without signature verification. ok is false for
// opaque tokens or tokens that do not parse.
func Parse(token string) (Claims, bool) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Claims{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, false
	}
	out := Claims{Subject: strings.TrimSpace(claims.Subject)}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, true
}

// Inspector decides whether a token is known to be expired.
type Inspector struct {
	leeway time.Duration
	now    func() time.Time
}

// NewInspector returns an Inspector. A non-positive leeway uses 30s.
func NewInspector(leeway time.Duration) *Inspector {
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Inspector{leeway: leeway, now: time.Now}
}

// Expired reports whether token is a JWT whose exp lies more than the leeway
// in the past. Opaque tokens and tokens without exp are never expired here.
func (i *Inspector) Expired(token string) bool {
	claims, ok := Parse(token)
	if !ok || claims.ExpiresAt.IsZero() {
		return false
	}
	return i.now().UTC().After(claims.ExpiresAt.Add(i.leeway))
}
