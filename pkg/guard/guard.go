// Package guard decides which route tree to show from the two session stores.
package guard

import (
	"path"
	"strings"

	"storefront/pkg/session"
)

// State is what the shell should render for a path.
type State string

const (
	Loading        State = "loading"
	ShowUserApp    State = "user_app"
	ShowAdminApp   State = "admin_app"
	ShowUserLogin  State = "user_login"
	ShowAdminLogin State = "admin_login"
)

const (
	UserLoginPath  = "/auth"
	AdminLoginPath = "/adminlogin"
	UserHomePath   = "/"
	AdminHomePath  = "/admin"
)

var userTree = map[string]bool{
	"/":           true,
	"/collection": true,
	"/new":        true,
	"/sale":       true,
	"/wishlist":   true,
	"/cart":       true,
	"/profile":    true,
	"/order":      true,
}

// Decision is the outcome for one path. Redirect is set when the path itself
// is not where the shell should land.
type Decision struct {
	State    State  `json:"state"`
	Path     string `json:"path"`
	Redirect string `json:"redirect,omitempty"`
}

// Source is a session store as seen by the guard.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (cancel func())
}

// Guard joins the user and admin stores.
type Guard struct {
	user  Source
	admin Source
}

// New returns a Guard over the two stores.
func New(user, admin Source) *Guard {
	return &Guard{user: user, admin: admin}
}

// Ready reports whether both stores finished their first check.
func (g *Guard) Ready() bool {
	return g.user.Snapshot().Checked && g.admin.Snapshot().Checked
}

// Resolve evaluates p against the current state of both stores.
func (g *Guard) Resolve(p string) Decision {
	return Evaluate(g.user.Snapshot(), g.admin.Snapshot(), p)
}

// Follow calls fn with the decision for p now and again after every change of
// either store.
func (g *Guard) Follow(p string, fn func(Decision)) (cancel func()) {
	onChange := func(session.Snapshot) { fn(g.Resolve(p)) }
	cancelUser := g.user.Subscribe(onChange)
	cancelAdmin := g.admin.Subscribe(onChange)
	fn(g.Resolve(p))
	return func() {
		cancelUser()
		cancelAdmin()
	}
}

// Evaluate is the pure routing decision.
func Evaluate(user, admin session.Snapshot, p string) Decision {
	p = Normalize(p)
	if !user.Checked || !admin.Checked {
		return Decision{State: Loading, Path: p}
	}
	userIn := user.Authenticated()
	adminIn := admin.Authenticated()

	switch {
	case p == UserLoginPath:
		if userIn {
			return Decision{State: ShowUserApp, Path: p, Redirect: UserHomePath}
		}
		return Decision{State: ShowUserLogin, Path: p}
	case p == AdminLoginPath:
		if adminIn {
			return Decision{State: ShowAdminApp, Path: p, Redirect: AdminHomePath}
		}
		return Decision{State: ShowAdminLogin, Path: p}
	case IsAdminPath(p):
		if adminIn {
			return Decision{State: ShowAdminApp, Path: p}
		}
		return Decision{State: ShowAdminLogin, Path: p, Redirect: AdminLoginPath}
	case userTree[p]:
		if userIn {
			return Decision{State: ShowUserApp, Path: p}
		}
		return Decision{State: ShowUserLogin, Path: p, Redirect: UserLoginPath}
	}

	// Unknown paths.
	switch {
	case userIn:
		return Decision{State: ShowUserApp, Path: p, Redirect: UserHomePath}
	case adminIn:
		return Decision{State: ShowAdminApp, Path: p, Redirect: AdminHomePath}
	default:
		return Decision{State: ShowUserLogin, Path: p, Redirect: UserLoginPath}
	}
}

// IsAdminPath reports whether p belongs to the admin tree.
func IsAdminPath(p string) bool {
	p = Normalize(p)
	return p == AdminHomePath || strings.HasPrefix(p, AdminHomePath+"/")
}

// Normalize cleans p into an absolute path without a trailing slash. Query
// strings and fragments are dropped.
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
