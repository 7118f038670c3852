package ot

// Apply applies op to content and returns the new content. It is pure and
// total: it never fails, whatever the operation says.
//
// An INSERT past the end of the content appends; a DELETE starting past the
// end is a no-op; a DELETE running past the end is truncated. The clamping
// keeps collaborative typing resilient to racing edits at the cost of not
// detecting genuine divergence, so callers that care should check Clamps
// before applying. An unknown kind leaves content unchanged; the caller is
// expected to log it as a protocol anomaly.
func Apply(content string, op Operation) string {
	r := []rune(content)
	pos := op.Position
	if pos < 0 {
		pos = 0
	}
	switch op.Kind {
	case Insert:
		if pos <= len(r) {
			return string(r[:pos]) + op.Text + string(r[pos:])
		}
		return content + op.Text
	case Delete:
		if pos >= len(r) {
			return content
		}
		end := pos + op.Len()
		if end > len(r) {
			end = len(r)
		}
		return string(r[:pos]) + string(r[end:])
	}
	return content
}

// Clamps reports whether applying op to content would hit one of Apply's
// defensive clamps (out-of-range position or truncated delete). Divergence
// between replicas shows up here first, so it is worth counting.
func Clamps(content string, op Operation) bool {
	n := len([]rune(content))
	switch op.Kind {
	case Insert:
		return op.Position < 0 || op.Position > n
	case Delete:
		return op.Position < 0 || op.Position >= n || op.Position+op.Len() > n
	}
	return false
}

// Rebuild folds Apply over ops starting from empty content. It is the resync
// path: deterministic and order-stable for a fixed operation sequence.
func Rebuild(ops []Operation) string {
	content := ""
	for _, op := range ops {
		content = Apply(content, op)
	}
	return content
}
