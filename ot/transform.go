package ot

// TransformCursor adjusts a cursor offset for a remote operation that was
// applied to the buffer the cursor sits in.
//
// An insert at or before the cursor shifts it right by the inserted length
// (insert exactly at the cursor counts as before it, so typing by a
// collaborator at your caret pushes the caret along). A delete entirely
// before the cursor shifts it left; a delete covering the cursor collapses
// it to the deletion start.
func TransformCursor(c int, op Operation) int {
	switch op.Kind {
	case Insert:
		if op.Position <= c {
			return c + op.Len()
		}
	case Delete:
		end := op.Position + op.Len()
		if end <= c {
			return c - op.Len()
		}
		if op.Position < c {
			return op.Position
		}
	}
	return c
}

// TransformRange adjusts a selection (start, end) with TransformCursor on
// both boundaries.
func TransformRange(start, end int, op Operation) (int, int) {
	return TransformCursor(start, op), TransformCursor(end, op)
}

// TransformOperation returns pending with its position adjusted for applied,
// an operation that reached the document first. This is the reconciliation
// step for genuinely concurrent local and remote edits: the position moves
// by the same rules as a cursor, and the rest of the operation is unchanged.
func TransformOperation(pending, applied Operation) Operation {
	pending.Position = TransformCursor(pending.Position, applied)
	return pending
}
