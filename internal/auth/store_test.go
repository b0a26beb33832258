package auth

import (
	"testing"
)

func TestSessionStore(t *testing.T) {
	s := NewStore(t.TempDir())
	if s.Token() != "" {
		t.Fatal("empty store must have no token")
	}
	if err := s.SetUser(User{Token: "t1"}, false); err != nil {
		t.Fatal(err)
	}
	if s.Token() != "t1" {
		t.Fatalf("token=%q, want t1", s.Token())
	}
	if got := NewStore(s.dataDir).Token(); got != "" {
		t.Fatalf("session token leaked to disk: %q", got)
	}
}

func TestRememberedStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	if err := NewStore(dir).SetUser(User{Token: "t2", Username: "ana"}, true); err != nil {
		t.Fatal(err)
	}
	s := NewStore(dir)
	u := s.CurrentUser()
	if u == nil || u.Token != "t2" || u.Username != "ana" {
		t.Fatalf("user=%+v, want t2/ana", u)
	}

	s.Logout()
	if s.Token() != "" {
		t.Fatalf("token after logout=%q", s.Token())
	}
}
