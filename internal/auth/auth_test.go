package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestCreateResolveInvalidate(t *testing.T) {
	s := NewSessionStore(time.Hour)
	id, err := s.Create("admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(id) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(id))
	}

	sess, ok := s.Resolve(id)
	if !ok || sess.Username != "admin" {
		t.Fatalf("Resolve = %+v, %v", sess, ok)
	}

	s.Invalidate(id)
	s.Invalidate(id)
	if _, ok := s.Resolve(id); ok {
		t.Fatal("session still resolvable after Invalidate")
	}
	if _, ok := s.Resolve(""); ok {
		t.Fatal("empty token resolved")
	}
}

func TestSlidingExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSessionStore(time.Hour)
	s.now = func() time.Time { return now }

	id, _ := s.Create("admin")

	now = now.Add(50 * time.Minute)
	sess, ok := s.Resolve(id)
	if !ok {
		t.Fatal("expected session to be live")
	}
	if want := now.Add(time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}

	// Still live because the previous Resolve extended it.
	now = now.Add(50 * time.Minute)
	if _, ok := s.Resolve(id); !ok {
		t.Fatal("sliding refresh did not extend the session")
	}

	now = now.Add(time.Hour)
	if _, ok := s.Resolve(id); ok {
		t.Fatal("expected expired session")
	}
	if s.Len() != 0 {
		t.Errorf("expired session not pruned, Len = %d", s.Len())
	}
}

func TestCleanup(t *testing.T) {
	s := NewSessionStore(-time.Second)
	s.Create("a")
	s.Create("b")
	if n := s.Cleanup(); n != 2 {
		t.Errorf("Cleanup removed %d, want 2", n)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestCredentialsVerify(t *testing.T) {
	plain := Credentials{Username: "admin", Password: "secret"}
	if !plain.Verify("admin", "secret") {
		t.Error("plain credentials rejected")
	}
	if plain.Verify("admin", "secreT") || plain.Verify("root", "secret") || plain.Verify("admin", "") {
		t.Error("wrong credentials accepted")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	hashed := Credentials{Username: "admin", Password: string(hash)}
	if !hashed.Verify("admin", "secret") {
		t.Error("bcrypt credentials rejected")
	}
	if hashed.Verify("admin", string(hash)) {
		t.Error("hash accepted as password")
	}
}
