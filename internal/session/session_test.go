package session

import (
	"errors"
	"testing"
	"time"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openMem(t)
	if _, ok, err := s.Load(); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	want := Identity{UserID: "u1", Name: "Asha", Phone: "+91"}
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load()
	if err != nil || !ok || got != want {
		t.Fatalf("unexpected identity %+v ok=%v err=%v", got, ok, err)
	}
}

func TestClaimsFromToken(t *testing.T) {
	tok, err := IssueToken("u7", "user", "Ravi", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := ClaimsFromToken(tok, "s3cret")
	if err != nil || c.UserID != "u7" || c.Name != "Ravi" {
		t.Fatalf("unexpected claims %+v err=%v", c, err)
	}
	if _, err := ClaimsFromToken(tok, "other"); err == nil {
		t.Fatalf("expected signature failure with wrong secret")
	}
	if c, err := ClaimsFromToken(tok, ""); err != nil || c.UserID != "u7" {
		t.Fatalf("unverified parse failed: %+v %v", c, err)
	}

	noUser, _ := IssueToken("", "user", "", "s3cret", time.Hour)
	if _, err := ClaimsFromToken(noUser, "s3cret"); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}

func TestResolvePrecedence(t *testing.T) {
	s := openMem(t)
	first, err := Resolve(s, "", "", "")
	if err != nil || first.UserID == "" {
		t.Fatalf("expected generated id, got %+v %v", first, err)
	}
	again, _ := Resolve(s, "", "", "")
	if again.UserID != first.UserID {
		t.Fatalf("expected stored id to be reused, got %q want %q", again.UserID, first.UserID)
	}

	tok, _ := IssueToken("from-token", "user", "", "k", time.Hour)
	fromToken, err := Resolve(s, "", tok, "k")
	if err != nil || fromToken.UserID != "from-token" || fromToken.Token != tok {
		t.Fatalf("expected token identity, got %+v %v", fromToken, err)
	}

	override, _ := Resolve(s, "cli-user", tok, "k")
	if override.UserID != "cli-user" {
		t.Fatalf("expected override, got %q", override.UserID)
	}
}
