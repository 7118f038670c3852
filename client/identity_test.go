package client

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestIdentityPersistsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")

	first, err := LoadOrCreateIdentity(path, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(first.UserID, "user-") {
		t.Fatalf("userID = %q", first.UserID)
	}
	if first.DisplayName != "alice" {
		t.Fatalf("displayName = %q", first.DisplayName)
	}

	// Second load keeps the same user id.
	second, err := LoadOrCreateIdentity(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Fatalf("reload changed identity: %+v != %+v", second, first)
	}

	// A new display name is written back, the user id stays.
	renamed, err := LoadOrCreateIdentity(path, "alice the great")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.UserID != first.UserID {
		t.Fatal("rename changed the user id")
	}
	if renamed.DisplayName != "alice the great" {
		t.Fatalf("displayName = %q", renamed.DisplayName)
	}

	again, err := LoadOrCreateIdentity(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.DisplayName != "alice the great" {
		t.Fatal("rename was not persisted")
	}
}

func TestIdentityDefaultName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")
	id, err := LoadOrCreateIdentity(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if id.DisplayName != "anonymous" {
		t.Fatalf("displayName = %q", id.DisplayName)
	}
}
