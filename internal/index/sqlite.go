package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agenthands/tuberag/internal/embedding"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id  TEXT NOT NULL UNIQUE,
	title     TEXT NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLite is the default on-disk index. Embeddings are stored as
// little-endian float32 blobs and ranked in process.
type SQLite struct {
	db   *sql.DB
	meta Meta
}

func OpenSQLite(ctx context.Context, path string, meta Meta) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite index '%s': %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLite{db: db, meta: meta}
	if err := s.ensureMeta(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureMeta(ctx context.Context) error {
	stored, found, err := s.readMeta(ctx)
	if err != nil {
		return err
	}
	if found {
		return s.meta.check(stored)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for k, v := range map[string]string{"model": s.meta.Model, "dimension": strconv.Itoa(s.meta.Dimension)} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write index metadata: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) readMeta(ctx context.Context) (Meta, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return Meta{}, false, fmt.Errorf("failed to read index metadata: %w", err)
	}
	defer rows.Close()

	var m Meta
	found := false
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, false, err
		}
		found = true
		switch k {
		case "model":
			m.Model = v
		case "dimension":
			dim, err := strconv.Atoi(v)
			if err != nil {
				return Meta{}, false, fmt.Errorf("%w: corrupt stored dimension %q", ErrSchemaMismatch, v)
			}
			m.Dimension = dim
		}
	}
	return m, found, rows.Err()
}

func (s *SQLite) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(records, s.meta.Dimension); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcripts (video_id, title, text, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (video_id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.VideoID, r.Title, r.Text, embedding.EncodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", r.VideoID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcripts`); err != nil {
		return fmt.Errorf("failed to clear transcripts: %w", err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := checkQuery(query, s.meta.Dimension); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT video_id, title, text, embedding FROM transcripts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcripts: %w", err)
	}
	defer rows.Close()

	var candidates []Record
	for rows.Next() {
		var r Record
		var blob []byte
		if err := rows.Scan(&r.VideoID, &r.Title, &r.Text, &blob); err != nil {
			return nil, err
		}
		vec, err := embedding.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.VideoID, err)
		}
		if len(vec) != s.meta.Dimension {
			return nil, fmt.Errorf("%w: stored record %s has dimension %d", ErrSchemaMismatch, r.VideoID, len(vec))
		}
		r.Embedding = vec
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return Rank(candidates, query, k), nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
