package ot_test

import (
	"reflect"
	"testing"

	"collabnotes/ot"
)

func eq(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func bare(kind ot.Kind, pos int, text string) ot.Operation {
	return ot.Operation{Kind: kind, Position: pos, Text: text}
}

func TestNew(t *testing.T) {
	op, err := ot.New(ot.Insert, 3, "l", "doc-1", "user-a")
	if err != nil {
		t.Fatal(err)
	}
	eq(t, op.Kind, ot.Insert)
	eq(t, op.Position, 3)
	eq(t, op.Text, "l")
	eq(t, op.DocumentID, "doc-1")
	eq(t, op.UserID, "user-a")
	if op.ID == "" {
		t.Fatal("operation has no ID")
	}
	if op.Timestamp == 0 {
		t.Fatal("operation has no timestamp")
	}

	if _, err := ot.New("MOVE", 0, "x", "doc-1", "user-a"); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if _, err := ot.New(ot.Delete, 0, "", "doc-1", "user-a"); err == nil {
		t.Fatal("empty text accepted")
	}

	op, err = ot.New(ot.Insert, -4, "x", "doc-1", "user-a")
	if err != nil {
		t.Fatal(err)
	}
	eq(t, op.Position, 0)
}

func TestDiffInsert(t *testing.T) {
	ops := ot.Diff("helo", "hello")
	eq(t, ops, []ot.Operation{bare(ot.Insert, 3, "l")})
	eq(t, ot.Apply("helo", ops[0]), "hello")
}

func TestDiffDelete(t *testing.T) {
	ops := ot.Diff("hello world", "hello")
	eq(t, ops, []ot.Operation{bare(ot.Delete, 5, " world")})
	eq(t, ot.Apply("hello world", ops[0]), "hello")
}

func TestDiffReplace(t *testing.T) {
	ops := ot.Diff("abcdef", "abXYef")
	eq(t, ops, []ot.Operation{
		bare(ot.Delete, 2, "cd"),
		bare(ot.Insert, 2, "XY"),
	})
}

func TestDiffNoChange(t *testing.T) {
	eq(t, len(ot.Diff("same", "same")), 0)
	eq(t, len(ot.Diff("", "")), 0)
}

// Round trip: for a single-run edit old -> new, applying Diff(old, new) to
// old must reproduce new exactly.
func TestDiffRoundTrip(t *testing.T) {
	cases := []struct{ old, new string }{
		{"", "hello"},
		{"hello", ""},
		{"hello", "hello world"},
		{"hello world", "world"},
		{"aaaa", "aaaaa"},
		{"aaaaa", "aaaa"},
		{"the quick fox", "the quick brown fox"},
		{"tabs\tand\nnewlines", "tabs\tand spaces\nnewlines"},
		{"héllo wörld", "héllo brave wörld"},
		{"日本語テキスト", "日本語のテキスト"},
		{"abcdef", "abXdef"},
		{"abcdef", "aZZZef"},
	}
	for _, c := range cases {
		got := c.old
		for _, op := range ot.Diff(c.old, c.new) {
			got = ot.Apply(got, op)
		}
		if got != c.new {
			t.Errorf("Diff(%q, %q) round trip produced %q", c.old, c.new, got)
		}
	}
}

func TestApplyInsertClamp(t *testing.T) {
	// Position past the end appends.
	eq(t, ot.Apply("ab", bare(ot.Insert, 99, "c")), "abc")
	eq(t, ot.Apply("", bare(ot.Insert, 5, "x")), "x")
	// Negative positions insert at the front.
	eq(t, ot.Apply("bc", bare(ot.Insert, -1, "a")), "abc")
}

func TestApplyDeleteClamp(t *testing.T) {
	// Start past the end is a no-op.
	eq(t, ot.Apply("ab", bare(ot.Delete, 5, "xy")), "ab")
	// Run past the end is truncated.
	eq(t, ot.Apply("abcd", bare(ot.Delete, 2, "cdef")), "ab")
	eq(t, ot.Apply("", bare(ot.Delete, 0, "x")), "")
}

func TestApplyUnknownKind(t *testing.T) {
	op := ot.Operation{Kind: "MOVE", Position: 1, Text: "x"}
	eq(t, ot.Apply("abc", op), "abc")
	eq(t, ot.Clamps("abc", op), false)
}

func TestApplyUnicode(t *testing.T) {
	// Positions are rune offsets: inserting after "héllo " must not split
	// the multi-byte é.
	eq(t, ot.Apply("héllo wörld", bare(ot.Insert, 6, "brave ")), "héllo brave wörld")
	eq(t, ot.Apply("héllo", bare(ot.Delete, 1, "é")), "hllo")
}

// Clamp safety: Apply never changes the length by more than the operation
// text length, in either direction.
func TestApplyLengthBounds(t *testing.T) {
	contents := []string{"", "a", "hello", "héllo wörld"}
	ops := []ot.Operation{
		bare(ot.Insert, 0, "xy"),
		bare(ot.Insert, 3, "xy"),
		bare(ot.Insert, 100, "xy"),
		bare(ot.Delete, 0, "xy"),
		bare(ot.Delete, 4, "xy"),
		bare(ot.Delete, 100, "xy"),
	}
	for _, content := range contents {
		n := len([]rune(content))
		for _, op := range ops {
			out := len([]rune(ot.Apply(content, op)))
			if out < n-op.Len() || out > n+op.Len() {
				t.Errorf("Apply(%q, %v) length %d out of bounds", content, op, out)
			}
		}
	}
}

func TestClamps(t *testing.T) {
	eq(t, ot.Clamps("abc", bare(ot.Insert, 3, "x")), false)
	eq(t, ot.Clamps("abc", bare(ot.Insert, 4, "x")), true)
	eq(t, ot.Clamps("abc", bare(ot.Delete, 2, "c")), false)
	eq(t, ot.Clamps("abc", bare(ot.Delete, 2, "cd")), true)
	eq(t, ot.Clamps("abc", bare(ot.Delete, 3, "x")), true)
	eq(t, ot.Clamps("", bare(ot.Delete, 0, "x")), true)
}

func TestRebuild(t *testing.T) {
	ops := []ot.Operation{
		bare(ot.Insert, 0, "hello"),
		bare(ot.Insert, 5, " world"),
		bare(ot.Delete, 0, "hello "),
		bare(ot.Insert, 0, "brave "),
	}
	eq(t, ot.Rebuild(ops), "brave world")

	// Rebuilding the same sequence twice yields identical results.
	eq(t, ot.Rebuild(ops), ot.Rebuild(ops))
	eq(t, ot.Rebuild(nil), "")
}

func TestTransformCursor(t *testing.T) {
	run := func(c int, op ot.Operation, want int) {
		t.Helper()
		eq(t, ot.TransformCursor(c, op), want)
	}

	// Insert before the cursor shifts it right.
	run(10, bare(ot.Insert, 3, "xyz"), 13)
	// Insert exactly at the cursor counts as before it.
	run(4, bare(ot.Insert, 4, "ab"), 6)
	// Insert after the cursor leaves it alone.
	run(2, bare(ot.Insert, 5, "xyz"), 2)

	// Delete entirely before the cursor shifts it left.
	run(10, bare(ot.Delete, 2, "ab"), 8)
	// Delete covering the cursor collapses it to the deletion start.
	run(5, bare(ot.Delete, 2, "abcd"), 2)
	// Delete ending exactly at the cursor shifts, not collapses.
	run(6, bare(ot.Delete, 2, "abcd"), 2)
	// Delete after the cursor leaves it alone.
	run(1, bare(ot.Delete, 3, "xy"), 1)
}

func TestTransformRange(t *testing.T) {
	start, end := ot.TransformRange(4, 9, bare(ot.Insert, 2, "ab"))
	eq(t, start, 6)
	eq(t, end, 11)

	// Selection straddling a delete collapses its covered boundary.
	start, end = ot.TransformRange(3, 8, bare(ot.Delete, 4, "abcd"))
	eq(t, start, 3)
	eq(t, end, 4)
}

func TestTransformOperation(t *testing.T) {
	pending := bare(ot.Insert, 7, "local")
	applied := bare(ot.Insert, 2, "abc")
	got := ot.TransformOperation(pending, applied)
	eq(t, got.Position, 10)
	eq(t, got.Text, "local")
	// The input operation is untouched.
	eq(t, pending.Position, 7)

	got = ot.TransformOperation(bare(ot.Delete, 5, "xy"), bare(ot.Delete, 1, "ab"))
	eq(t, got.Position, 3)
}
