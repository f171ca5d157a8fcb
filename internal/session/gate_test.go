package session

import "testing"

func TestGate_RequiresSession(t *testing.T) {
	g := NewGate()

	tests := []struct {
		name string
		path string
		opts Options
		want bool
	}{
		{"privileged by default", "/api/v1/courses/42/progress", Options{}, true},
		{"whoami is public", "/api/v1/auth/session", Options{}, false},
		{"refresh is public", "/api/v1/auth/refresh", Options{}, false},
		{"login is public", "/api/v1/auth/login", Options{}, false},
		{"catalog is public", "/api/v1/catalog/courses", Options{}, false},
		{"health is public", "/health", Options{}, false},
		{"session admin is privileged", "/api/v1/auth/sessions", Options{}, true},
		{"require-auth forces check", "/api/v1/catalog/courses", Options{RequireAuth: true}, true},
		{"allow-anonymous bypasses", "/api/v1/courses/42/progress", Options{AllowAnonymous: true}, false},
		{"allow-anonymous wins over require-auth", "/x", Options{RequireAuth: true, AllowAnonymous: true}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.RequiresSession(tc.path, tc.opts); got != tc.want {
				t.Fatalf("RequiresSession(%q, %+v) = %v, want %v", tc.path, tc.opts, got, tc.want)
			}
		})
	}
}

func TestCache_HasActiveSession(t *testing.T) {
	c := NewCache()
	if c.HasActiveSession() {
		t.Fatal("fresh cache must not report an active session")
	}

	c.SetToken("tok")
	if !c.HasActiveSession() {
		t.Fatal("expected active session with a token")
	}

	c.Clear()
	c.SetIdentity("user-1")
	if !c.HasActiveSession() {
		t.Fatal("expected active session with a cached identity")
	}

	c.Clear()
	if c.HasActiveSession() {
		t.Fatal("expected no session after clear")
	}
}
