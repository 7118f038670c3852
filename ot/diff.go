package ot

// Diff computes the operations that transform old into new, as bare
// Insert/Delete ops (no document or author context, no IDs).
//
// This is a single-run diff: it scans for the common prefix and assumes the
// change is one contiguous run, which is what keystroke-driven edits produce.
// A same-length replacement comes out as a DELETE followed by an INSERT over
// the differing span. Multi-region edits (a find-replace touching several
// places at once) are not decomposed minimally; the resulting operations are
// still valid but wider than necessary.
func Diff(old, new string) []Operation {
	if old == new {
		return nil
	}
	o, n := []rune(old), []rune(new)

	p := 0
	for p < len(o) && p < len(n) && o[p] == n[p] {
		p++
	}

	switch {
	case len(n) > len(o):
		// Insertion: the added run starts at the first difference.
		return []Operation{{
			Kind:     Insert,
			Position: p,
			Text:     string(n[p : p+len(n)-len(o)]),
		}}
	case len(n) < len(o):
		// Deletion: the removed run starts at the first difference.
		return []Operation{{
			Kind:     Delete,
			Position: p,
			Text:     string(o[p : p+len(o)-len(n)]),
		}}
	default:
		// Same length: replace the span between the first and last
		// differing runes.
		start, end := -1, -1
		for i := range o {
			if o[i] != n[i] {
				if start == -1 {
					start = i
				}
				end = i
			}
		}
		if start == -1 {
			return nil
		}
		return []Operation{
			{Kind: Delete, Position: start, Text: string(o[start : end+1])},
			{Kind: Insert, Position: start, Text: string(n[start : end+1])},
		}
	}
}
