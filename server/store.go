// Package server implements the reference synchronization server: a
// websocket hub with one room per document, a REST API for document CRUD,
// pluggable persistence, and an optional Redis bridge for running more than
// one instance.
package server

import (
	"context"
	"errors"
	"sort"
	"sync"

	"collabnotes/ot"
	"collabnotes/protocol"
)

// ErrNotFound reports a document that does not exist.
var ErrNotFound = errors.New("document not found")

// Store persists documents and their operation logs.
type Store interface {
	CreateDocument(ctx context.Context, doc protocol.Document) error
	Document(ctx context.Context, id string) (protocol.Document, error)
	Documents(ctx context.Context) ([]protocol.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	AppendOperation(ctx context.Context, op ot.Operation) error
	Operations(ctx context.Context, documentID string) ([]ot.Operation, error)
}

// MemoryStore is the in-process Store used for tests and single-instance
// runs without a database.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]protocol.Document
	ops  map[string][]ot.Operation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]protocol.Document),
		ops:  make(map[string][]ot.Operation),
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc protocol.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Document(_ context.Context, id string) (protocol.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return protocol.Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) Documents(_ context.Context) ([]protocol.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	delete(s.ops, id)
	return nil
}

func (s *MemoryStore) AppendOperation(_ context.Context, op ot.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.DocumentID] = append(s.ops[op.DocumentID], op)
	return nil
}

func (s *MemoryStore) Operations(_ context.Context, documentID string) ([]ot.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ot.Operation(nil), s.ops[documentID]...), nil
}
