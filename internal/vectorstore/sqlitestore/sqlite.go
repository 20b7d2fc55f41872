package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding"
	"vecsearch/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexes (
    name       TEXT PRIMARY KEY,
    model      TEXT NOT NULL,
    field      TEXT NOT NULL,
    dimension  INTEGER NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
    index_name TEXT NOT NULL,
    namespace  TEXT NOT NULL,
    id         TEXT NOT NULL,
    title      TEXT NOT NULL,
    text       TEXT NOT NULL,
    embedding  BLOB,
    PRIMARY KEY (index_name, namespace, id)
);
`

// Config configures the SQLite-backed store.
type Config struct {
	Name string
	// DSN is a file path or ":memory:".
	DSN string
}

// Storage keeps records in SQLite with embeddings encoded as float32 BLOBs.
// Similarity is computed in Go over the rows of one namespace.
type Storage struct {
	name     string
	db       *sql.DB
	embedder embedding.Embedder
}

// Open opens the database at cfg.DSN and ensures the schema exists.
func Open(cfg Config, embedder embedding.Embedder) (*Storage, error) {
	if cfg.Name == "" {
		return nil, errors.New("sqlitestore: index name is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("sqlitestore: dsn is required")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are private to a connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: schema: %w", err)
	}
	return &Storage{name: cfg.Name, db: db, embedder: embedder}, nil
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	return indexExists(ctx, s.db, s.name)
}

func (s *Storage) Create(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Dimension == 0 {
		spec.Dimension = s.embedder.Dimension()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ok, err := indexExists(ctx, tx, s.name)
	if err != nil {
		return err
	}
	if ok {
		return domain.ErrIndexExists
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO indexes(name, model, field, dimension, created_at) VALUES(?, ?, ?, ?, ?)`,
		s.name, spec.Model, spec.Field, spec.Dimension, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) Ready(ctx context.Context) (bool, error) {
	return s.Exists(ctx)
}

func (s *Storage) Drop(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, s.name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrIndexNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE index_name = ?`, s.name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) Upsert(ctx context.Context, ns domain.Namespace, records []domain.Record) error {
	if ok, err := s.Exists(ctx); err != nil {
		return err
	} else if !ok {
		return domain.ErrIndexNotFound
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := vectorstore.EmbedAll(ctx, s.embedder, texts, 0)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if ok, err := indexExists(ctx, tx, s.name); err != nil {
		return err
	} else if !ok {
		return domain.ErrIndexNotFound
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records(index_name, namespace, id, title, text, embedding) VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(index_name, namespace, id) DO UPDATE SET
    title = excluded.title,
    text = excluded.text,
    embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, s.name, string(ns), r.ID, r.Title, r.Text, vectorstore.EncodeEmbedding(vectors[i])); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) Search(ctx context.Context, ns domain.Namespace, query string, topK int) ([]domain.Candidate, error) {
	if ok, err := s.Exists(ctx); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.ErrIndexNotFound
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, text, embedding FROM records WHERE index_name = ? AND namespace = ?`, s.name, string(ns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []domain.Candidate
	for rows.Next() {
		var (
			c    domain.Candidate
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Text, &blob); err != nil {
			return nil, err
		}
		vec, err := vectorstore.DecodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		if c.Score, err = vectorstore.Cosine(vec, qvec); err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.TopK(cands, topK), nil
}

func (s *Storage) Close() error { return s.db.Close() }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func indexExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM indexes WHERE name = ?`, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ vectorstore.Storage = (*Storage)(nil)
