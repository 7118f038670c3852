// Package ot implements the edit model for collaborative plain text:
// operations, the snapshot diff that produces them, clamped application,
// and the position transforms that keep cursors and concurrent edits
// consistent.
//
// All positions index runes, not bytes, so multi-byte characters are never
// split by an edit that originated on another client.
package ot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the operation type discriminator used on the wire.
type Kind string

const (
	Insert Kind = "INSERT"
	Delete Kind = "DELETE"
)

// Operation is a single atomic edit: a run of text inserted at or deleted
// from a position. Operations are immutable once created; transforms return
// adjusted copies.
type Operation struct {
	ID         string `json:"id,omitempty"`
	Kind       Kind   `json:"type"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
	DocumentID string `json:"documentId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	Sequence   int64  `json:"sequence,omitempty"`
}

// New builds an operation with a fresh ID and wall-clock timestamp. The kind
// must be Insert or Delete and the text must be non-empty: an empty-text
// operation is a no-op and must never reach the wire. Negative positions are
// clamped to zero.
func New(kind Kind, position int, text, documentID, userID string) (Operation, error) {
	if kind != Insert && kind != Delete {
		return Operation{}, fmt.Errorf("unknown operation kind %q", kind)
	}
	if text == "" {
		return Operation{}, fmt.Errorf("empty text in %s operation at %d", kind, position)
	}
	if position < 0 {
		position = 0
	}
	return Operation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Position:   position,
		Text:       text,
		DocumentID: documentID,
		UserID:     userID,
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// Len returns the rune length of the operation text.
func (op Operation) Len() int {
	return len([]rune(op.Text))
}

func (op Operation) String() string {
	return fmt.Sprintf("%s@%d %q", op.Kind, op.Position, op.Text)
}
