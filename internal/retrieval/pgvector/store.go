// Package pgvector searches entity embeddings stored in Postgres with the
// pgvector extension. It is the alternative to the Qdrant index for
// deployments that keep everything in one database.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgvpgx "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/embedding"
	"github.com/spigell/recruitbot/internal/retrieval"
)

const DefaultTable = "entity_embeddings"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db       querier
	table    string
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Connect opens a pool with the vector codecs registered on every connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvpgx.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}

func New(db querier, table string, embedder embedding.Embedder, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres connection is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if table = strings.TrimSpace(table); table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, table: table, embedder: embedder, logger: logger}, nil
}

func (s *Store) query() string {
	table := pgx.Identifier(strings.Split(s.table, ".")).Sanitize()
	return `SELECT payload, 1 - (embedding <=> $1) AS score FROM ` + table +
		` WHERE entity_type = $2 ORDER BY embedding <=> $1 LIMIT $3`
}

func (s *Store) Search(ctx context.Context, query string, entity retrieval.EntityType, topK int) ([]retrieval.Record, error) {
	if topK <= 0 {
		return []retrieval.Record{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", retrieval.ErrUnavailable, err)
	}

	s.logger.Debug("vector query", zap.String("table", s.table), zap.String("entity_type", string(entity)))
	rows, err := s.db.Query(ctx, s.query(), pgv.NewVector(vector), string(entity), topK)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	records := []retrieval.Record{}
	for rows.Next() {
		var (
			raw   []byte
			score float64
		)
		if err := rows.Scan(&raw, &score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}

		payload := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		records = append(records, retrieval.Record{Score: score, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return records, nil
}

// classify keeps SQL errors (bad table, bad column) distinct from an
// unreachable database.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("vector search: %w", err)
	}
	return fmt.Errorf("%w: %w", retrieval.ErrUnavailable, err)
}
