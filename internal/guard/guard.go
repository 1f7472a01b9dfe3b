// Package guard decides whether a page may be shown for the current session.
package guard

import (
	"net/http"

	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/session"
)

type Decision int

const (
	Render Decision = iota
	RedirectLogin
	RedirectDashboard
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectDashboard:
		return "redirect_dashboard"
	}
	return "unknown"
}

// Location is the redirect target for d, or "" for Render.
func (d Decision) Location() string {
	switch d {
	case RedirectLogin:
		return session.LoginPath
	case RedirectDashboard:
		return session.DashboardPath
	}
	return ""
}

// Decide applies the page contract: no session sends the user to login,
// a session without the required permission goes to the dashboard. An
// empty permission only requires a session. A session that is still being
// validated counts as no session. The permission check uses the snapshot's
// own evaluator, so it always matches the user being judged.
func Decide(s session.Snapshot, required rbac.Permission) Decision {
	if !s.Authenticated() {
		return RedirectLogin
	}
	if required != "" && !s.Evaluator().HasPermission(required) {
		return RedirectDashboard
	}
	return Render
}

// SessionSource provides the current session view.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Middleware guards next with Decide, answering redirects with 302 Found.
func Middleware(sessions SessionSource, required rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Decide(sessions.Snapshot(), required)
			if d != Render {
				http.Redirect(w, r, d.Location(), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
