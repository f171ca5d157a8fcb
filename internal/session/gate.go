// Package session decides when outgoing calls need an authenticated session
// and coordinates token refreshes across sibling agents.
package session

import "strings"

// Options are the per-call overrides producers can set.
type Options struct {
	// RequireAuth forces the session check even for public paths.
	RequireAuth bool
	// AllowAnonymous bypasses the check entirely. Wins over RequireAuth.
	AllowAnonymous bool
}

// publicPrefixes are reachable without a session. Everything else is
// privileged by default.
var publicPrefixes = []string{
	"/api/v1/auth/session",
	"/api/v1/auth/refresh",
	"/api/v1/auth/login",
	"/api/v1/catalog/",
	"/health",
	"/assets/",
}

// privilegedPrefixes override the public list for sensitive subtrees that
// happen to share a public prefix.
var privilegedPrefixes = []string{
	"/api/v1/auth/sessions", // session administration, not the whoami call
}

// Gate is the pure per-request policy: no I/O, no clock.
type Gate struct{}

func NewGate() *Gate { return &Gate{} }

// RequiresSession reports whether a call to path must have an authenticated
// session before it proceeds.
func (g *Gate) RequiresSession(path string, opts Options) bool {
	if opts.AllowAnonymous {
		return false
	}
	if opts.RequireAuth {
		return true
	}
	for _, p := range privilegedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}
