package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVector keeps transcripts in Postgres with a vector(D) column and ranks
// by cosine distance in SQL.
type PgVector struct {
	pool *pgxpool.Pool
	meta Meta
}

func OpenPgVector(ctx context.Context, dsn string, meta Meta) (*PgVector, error) {
	if dsn == "" {
		return nil, errors.New("pgvector index requires a dsn (DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVector{pool: pool, meta: meta}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVector) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transcripts_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create transcripts_meta: %w", err)
	}

	// dimension is an int, so formatting it into DDL is safe.
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS transcripts (
			seq       BIGSERIAL,
			video_id  TEXT PRIMARY KEY,
			title     TEXT NOT NULL,
			text      TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.meta.Dimension)); err != nil {
		return fmt.Errorf("create transcripts: %w", err)
	}

	var typmod int
	if err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'transcripts'::regclass AND attname = 'embedding'`).Scan(&typmod); err != nil {
		return fmt.Errorf("inspect embedding column: %w", err)
	}
	if typmod != s.meta.Dimension {
		return fmt.Errorf("%w: embedding column is vector(%d), embedder has dimension %d", ErrSchemaMismatch, typmod, s.meta.Dimension)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts_meta (key, value) VALUES ('model', $1), ('dimension', $2)
		ON CONFLICT (key) DO NOTHING`, s.meta.Model, strconv.Itoa(s.meta.Dimension)); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT key, value FROM transcripts_meta`)
	if err != nil {
		return fmt.Errorf("read index metadata: %w", err)
	}
	kv, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([2]string, error) {
		var p [2]string
		err := row.Scan(&p[0], &p[1])
		return p, err
	})
	if err != nil {
		return fmt.Errorf("read index metadata: %w", err)
	}

	var stored Meta
	for _, p := range kv {
		switch p[0] {
		case "model":
			stored.Model = p[1]
		case "dimension":
			stored.Dimension, _ = strconv.Atoi(p[1])
		}
	}
	return s.meta.check(stored)
}

func (s *PgVector) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(records, s.meta.Dimension); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO transcripts (video_id, title, text, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (video_id) DO UPDATE SET
				title = EXCLUDED.title,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, r.VideoID, r.Title, r.Text, pgvector.NewVector(r.Embedding))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.VideoID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PgVector) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM transcripts"); err != nil {
		return fmt.Errorf("clear transcripts: %w", err)
	}
	return nil
}

func (s *PgVector) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := checkQuery(query, s.meta.Dimension); err != nil {
		return nil, err
	}
	// Cosine distance to a zero vector is NaN in pgvector.
	if norm(query) == 0 {
		return []SearchResult{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT video_id, title, text, 1 - (embedding <=> $1) AS similarity
		FROM transcripts
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var similarity *float64
		if err := rows.Scan(&r.VideoID, &r.Title, &r.Text, &similarity); err != nil {
			return nil, err
		}
		if similarity != nil {
			// pgvector yields NaN for zero-norm vectors.
			r.Score = Score(*similarity)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgVector) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PgVector) Close() error {
	s.pool.Close()
	return nil
}
