package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabnotes/ot"
	"collabnotes/protocol"
)

// PostgresStore persists documents and operation logs in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and creates the schema when it
// is missing.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              text PRIMARY KEY,
	title           text NOT NULL,
	created_by      text NOT NULL,
	created_by_name text NOT NULL DEFAULT '',
	created_at      timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS operations (
	seq         bigserial PRIMARY KEY,
	op_id       text NOT NULL,
	document_id text NOT NULL,
	user_id     text NOT NULL,
	kind        text NOT NULL,
	position    integer NOT NULL,
	body        text NOT NULL,
	ts          bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS operations_document_idx ON operations (document_id, seq);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc protocol.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, created_by, created_by_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Title, doc.CreatedBy, doc.CreatedByName, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *PostgresStore) Document(ctx context.Context, id string) (protocol.Document, error) {
	var doc protocol.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_by, created_by_name, created_at, updated_at
		 FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Title, &doc.CreatedBy, &doc.CreatedByName, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return protocol.Document{}, ErrNotFound
	}
	if err != nil {
		return protocol.Document{}, fmt.Errorf("loading document %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) Documents(ctx context.Context) ([]protocol.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_by, created_by_name, created_at, updated_at
		 FROM documents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []protocol.Document
	for rows.Next() {
		var doc protocol.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.CreatedBy, &doc.CreatedByName,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM operations WHERE document_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting operations for %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) AppendOperation(ctx context.Context, op ot.Operation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operations (op_id, document_id, user_id, kind, position, body, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		op.ID, op.DocumentID, op.UserID, string(op.Kind), op.Position, op.Text, op.Timestamp)
	if err != nil {
		return fmt.Errorf("appending operation to %s: %w", op.DocumentID, err)
	}
	return nil
}

func (s *PostgresStore) Operations(ctx context.Context, documentID string) ([]ot.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, op_id, user_id, kind, position, body, ts
		 FROM operations WHERE document_id = $1 ORDER BY seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading operations for %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []ot.Operation
	for rows.Next() {
		var op ot.Operation
		var kind string
		if err := rows.Scan(&op.Sequence, &op.ID, &op.UserID, &kind, &op.Position,
			&op.Text, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.Kind = ot.Kind(kind)
		op.DocumentID = documentID
		out = append(out, op)
	}
	return out, rows.Err()
}
