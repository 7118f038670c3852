package client

import "testing"

func TestPresenceJoinLeave(t *testing.T) {
	p := NewPresence("user-local", "local")

	p.Join("user-b", "bob")
	if !p.Contains("user-b") {
		t.Fatal("user-b missing after join")
	}
	p.SetCursor("user-b", "", 7)

	p.Leave("user-b")
	if p.Contains("user-b") {
		t.Fatal("user-b present after leave")
	}
	// And no cursor survives for them.
	for _, e := range p.Users() {
		if e.UserID == "user-b" {
			t.Fatal("user-b in users after leave")
		}
	}

	// The local user never leaves.
	p.Leave("user-local")
	if !p.Contains("user-local") {
		t.Fatal("local user removed")
	}
}

func TestPresenceReplace(t *testing.T) {
	p := NewPresence("user-local", "local")
	p.Join("user-b", "bob")
	p.SetCursor("user-b", "", 3)

	p.Replace([]string{"user-b", "user-c"})
	if !p.Contains("user-b") || !p.Contains("user-c") || !p.Contains("user-local") {
		t.Fatalf("membership after replace: %v", p.Users())
	}
	// user-b's cursor survives a wholesale replace that keeps them.
	for _, e := range p.Users() {
		if e.UserID == "user-b" && (!e.HasCursor || e.Cursor != 3) {
			t.Fatalf("user-b cursor lost: %+v", e)
		}
	}

	p.Replace([]string{"user-c"})
	if p.Contains("user-b") {
		t.Fatal("user-b present after being replaced away")
	}
	if !p.Contains("user-local") {
		t.Fatal("local user dropped by replace")
	}
}

func TestPresenceNameBackfill(t *testing.T) {
	p := NewPresence("user-local", "local")

	// Joined before any name was known.
	p.Join("user-b", "")
	if got := p.NameOf("user-b"); got != "user-b" {
		t.Fatalf("NameOf = %q before backfill", got)
	}

	p.BackfillNames(map[string]string{"user-b": "bob", "user-local": "impostor"})
	if got := p.NameOf("user-b"); got != "bob" {
		t.Fatalf("NameOf = %q after backfill", got)
	}
	for _, e := range p.Users() {
		if e.UserID == "user-b" && e.DisplayName != "bob" {
			t.Fatalf("entry not relabeled: %+v", e)
		}
		if e.UserID == "user-local" && e.DisplayName != "local" {
			t.Fatalf("backfill renamed the local user: %+v", e)
		}
	}

	// A cursor update carries a name for a user we have never seen.
	p.SetCursor("user-d", "dora", 12)
	if got := p.NameOf("user-d"); got != "dora" {
		t.Fatalf("NameOf = %q from cursor report", got)
	}
}

func TestPresenceIgnoresOwnCursor(t *testing.T) {
	p := NewPresence("user-local", "local")
	p.SetCursor("user-local", "local", 9)
	for _, e := range p.Users() {
		if e.UserID == "user-local" && e.HasCursor {
			t.Fatal("local cursor echo applied")
		}
	}
}
