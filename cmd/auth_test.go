package cmd

import (
	"errors"
	"strings"
	"testing"
)

func TestLoginAndWhoami(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "alice\nsecret\n", "login")
	if err != nil {
		t.Fatalf("login error = %v", err)
	}
	assertContains(t, out, "Logged in as Alice")

	out, err = env.run(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami error = %v", err)
	}
	assertContains(t, out, "Alice", "(u1)", "username: alice", "/api/files/_pb_users_auth_/u1/a.png")

	out, err = env.run(t, "", "whoami", "--refresh")
	if err != nil {
		t.Fatalf("whoami --refresh error = %v", err)
	}
	assertContains(t, out, "Alice")
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "wrong\n", "login", "-u", "alice")
	if err == nil || !strings.Contains(err.Error(), "invalid username or password") {
		t.Errorf("login error = %v", err)
	}
	_, err = env.run(t, "\n", "login", "-u", "alice")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("login without password error = %v", err)
	}

	if _, err := env.run(t, "", "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("whoami after failed login error = %v, want errNotLoggedIn", err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	out, err := env.run(t, "", "logout")
	if err != nil {
		t.Fatalf("logout error = %v", err)
	}
	assertContains(t, out, "Logged out")

	if _, err := env.run(t, "", "list"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("list after logout error = %v, want errNotLoggedIn", err)
	}

	out, err = env.run(t, "", "logout")
	if err != nil {
		t.Fatalf("second logout error = %v", err)
	}
	assertContains(t, out, "Not logged in")
}

func TestExpiredSessionIsCleared(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.fb.RevokeTokens()

	_, err := env.run(t, "", "list")
	if err == nil || !strings.Contains(err.Error(), "session expired") {
		t.Fatalf("list with revoked token error = %v", err)
	}
	if _, err := env.run(t, "", "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("whoami after expiry error = %v, want errNotLoggedIn", err)
	}
}
