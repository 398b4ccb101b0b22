package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const createDocumentsTable = `
	CREATE TABLE IF NOT EXISTS profile_documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		doc        JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	)
`

// PostgresStore keeps documents as JSONB rows. ServerTimestamp fields take
// the database clock of the writing transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDocumentsTable); err != nil {
		return fmt.Errorf("failed to create profile_documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM profile_documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %w", ErrStoreRequest, collection, id, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	return s.write(ctx, "set", collection, id, doc, `
		INSERT INTO profile_documents (collection, id, doc)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, false)
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.write(ctx, "update", collection, id, fields, `
		UPDATE profile_documents
		SET doc = doc || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, true)
}

func (s *PostgresStore) Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.write(ctx, "merge", collection, id, fields, `
		INSERT INTO profile_documents (collection, id, doc)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = profile_documents.doc || EXCLUDED.doc, updated_at = NOW()
	`, false)
}

// write runs query in a transaction whose NOW() also resolves the
// document's ServerTimestamp fields.
func (s *PostgresStore) write(ctx context.Context, op, collection, id string, doc map[string]interface{}, query string, mustExist bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s %s/%s: %w", ErrStoreRequest, op, collection, id, err)
	}
	defer tx.Rollback()

	var now time.Time
	if err := tx.QueryRowContext(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return fmt.Errorf("%w: %s %s/%s: %w", ErrStoreRequest, op, collection, id, err)
	}

	raw, err := json.Marshal(resolveTimestamps(doc, now.UTC()))
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}

	result, err := tx.ExecContext(ctx, query, collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("%w: %s %s/%s: %w", ErrStoreRequest, op, collection, id, err)
	}
	if mustExist {
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %s %s/%s: %w", ErrStoreRequest, op, collection, id, err)
		}
		if rows == 0 {
			return ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s %s/%s: %w", ErrStoreRequest, op, collection, id, err)
	}
	return nil
}

var _ DocumentStore = (*PostgresStore)(nil)
