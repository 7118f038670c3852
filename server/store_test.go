package server_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"collabnotes/ot"
	"collabnotes/protocol"
	"collabnotes/server"
)

func TestMemoryStoreDocuments(t *testing.T) {
	s := server.NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	second := protocol.Document{ID: "b", Title: "second", CreatedAt: base.Add(time.Second)}
	first := protocol.Document{ID: "a", Title: "first", CreatedAt: base}
	if err := s.CreateDocument(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateDocument(ctx, first); err != nil {
		t.Fatal(err)
	}

	docs, err := s.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("docs = %v", docs)
	}

	doc, err := s.Document(ctx, "b")
	if err != nil || doc.Title != "second" {
		t.Fatalf("doc = %+v, err = %v", doc, err)
	}

	if _, err := s.Document(ctx, "nope"); !errors.Is(err, server.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryStoreDeleteDropsOperations(t *testing.T) {
	s := server.NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateDocument(ctx, protocol.Document{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	op := ot.Operation{ID: "op-1", Kind: ot.Insert, Text: "x", DocumentID: "a", Sequence: 1}
	if err := s.AppendOperation(ctx, op); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDocument(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx, "a"); !errors.Is(err, server.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}

	ops, err := s.Operations(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Fatalf("ops survived delete: %v", ops)
	}
}

func TestMemoryStoreOperationsIsolatedPerDocument(t *testing.T) {
	s := server.NewMemoryStore()
	ctx := context.Background()

	for i, docID := range []string{"a", "a", "b"} {
		op := ot.Operation{ID: "op", Kind: ot.Insert, Text: "x", DocumentID: docID, Sequence: int64(i + 1)}
		if err := s.AppendOperation(ctx, op); err != nil {
			t.Fatal(err)
		}
	}

	opsA, _ := s.Operations(ctx, "a")
	opsB, _ := s.Operations(ctx, "b")
	if len(opsA) != 2 || len(opsB) != 1 {
		t.Fatalf("ops = %d/%d", len(opsA), len(opsB))
	}
	if opsA[0].Sequence != 1 || opsA[1].Sequence != 2 {
		t.Fatalf("order = %v", opsA)
	}

	// The returned slice is a copy; mutating it must not touch the log.
	opsA[0].Text = "mutated"
	again, _ := s.Operations(ctx, "a")
	if again[0].Text != "x" {
		t.Fatalf("store leaked internal slice: %v", again)
	}
}
