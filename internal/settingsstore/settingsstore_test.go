package settingsstore

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "settings.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Set("u1", Entry{Theme: "dark"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got := s.Get("u1")
	if got.Theme != "dark" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetMissingUserReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "settings.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got := s.Get("nobody")
	if got.Theme != "" {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestReopenLoadsPersistedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	s1, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Set("u1", Entry{Theme: "light", Timezone: "UTC"})
	s1.Close()

	s2, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got := s2.Get("u1")
	if got.Theme != "light" || got.Timezone != "UTC" {
		t.Fatalf("got %+v", got)
	}
}

func TestOpenOnNonexistentFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "settings.json")

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if got := s.Get("anyone"); got.Theme != "" {
		t.Fatalf("expected empty store, got %+v", got)
	}
}
