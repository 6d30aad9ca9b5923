package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/tuberag/internal/config"
	"github.com/agenthands/tuberag/internal/driver"
)

// Open connects to the configured backend and validates its stored schema
// against meta. A mismatch returns ErrSchemaMismatch.
func Open(ctx context.Context, cfg config.IndexConfig, meta Meta) (Index, error) {
	switch strings.ToLower(cfg.Backend) {
	case "sqlite", "":
		s, err := OpenSQLite(ctx, cfg.Path, meta)
		if err != nil {
			return nil, err
		}
		return s, nil

	case "pgvector":
		p, err := OpenPgVector(ctx, cfg.DSN, meta)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "memgraph":
		uri := cfg.URI
		if uri == "" {
			uri = "bolt://localhost:7687"
		}
		d, err := driver.NewMemgraphDriver(ctx, uri, cfg.User, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Memgraph: %w", err)
		}
		g, err := OpenGraph(ctx, d, meta)
		if err != nil {
			_ = d.Close(ctx)
			return nil, err
		}
		return g, nil

	case "memory":
		return NewMemory(meta), nil

	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}
