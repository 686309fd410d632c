package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	key TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// SQLite is a Store backed by a single-table SQLite database. Documents are
// stored as JSON text keyed by the document key.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed initializes) the document store at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(key string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRow(`SELECT doc FROM documents WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("corrupt document %q: %w", key, err)
	}
	return doc, nil
}

func (s *SQLite) Set(key string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %q: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (key, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC())
	return err
}

// Update merges partial over the stored document inside a transaction so
// concurrent updaters cannot lose fields.
func (s *SQLite) Update(key string, partial map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	doc := make(map[string]any)
	var raw string
	err = tx.QueryRow(`SELECT doc FROM documents WHERE key = ?`, key).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// new document
	case err != nil:
		return err
	default:
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("corrupt document %q: %w", key, err)
		}
	}

	for k, v := range partial {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %q: %w", key, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO documents (key, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		key, string(merged), time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM documents WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLite)(nil)
