package pgvector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/recruitbot/internal/retrieval"
)

type fakeRow struct {
	payload []byte
	score   float64
}

type fakeRows struct {
	rows []fakeRow
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	*(dest[0].(*[]byte)) = row.payload
	*(dest[1].(*float64)) = row.score
	return nil
}

type fakeDB struct {
	rows    *fakeRows
	err     error
	lastSQL string
	args    []any
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.lastSQL = sql
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type unitEmbedder struct{}

func (unitEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestSearch(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{rows: []fakeRow{
		{payload: []byte(`{"entity_type":"job_posting","job_posting_id":3,"position_name":"Data Analyst"}`), score: 0.87},
		{payload: nil, score: 0.5},
	}}}

	store, err := New(db, "public.entities", unitEmbedder{}, nil)
	require.NoError(t, err)

	records, err := store.Search(context.Background(), "Data Analyst Hà Nội", retrieval.EntityJobPosting, 7)
	require.NoError(t, err)

	assert.True(t, strings.Contains(db.lastSQL, `FROM "public"."entities"`))
	assert.True(t, strings.Contains(db.lastSQL, "embedding <=> $1"))
	require.Len(t, db.args, 3)
	assert.Equal(t, pgv.NewVector([]float32{1, 0}), db.args[0])
	assert.Equal(t, "job_posting", db.args[1])
	assert.Equal(t, 7, db.args[2])

	require.Len(t, records, 2)
	assert.Equal(t, "Data Analyst", records[0].Payload["position_name"])
	assert.InDelta(t, 0.87, records[0].Score, 1e-9)
	assert.Empty(t, records[1].Payload)
}

func TestSearchErrors(t *testing.T) {
	down := &fakeDB{err: errors.New("dial tcp: connection refused")}
	store, err := New(down, "", unitEmbedder{}, nil)
	require.NoError(t, err)

	_, err = store.Search(context.Background(), "q", retrieval.EntityCompany, 3)
	assert.True(t, errors.Is(err, retrieval.ErrUnavailable))

	badSQL := &fakeDB{err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
	store, err = New(badSQL, "", unitEmbedder{}, nil)
	require.NoError(t, err)

	_, err = store.Search(context.Background(), "q", retrieval.EntityCompany, 3)
	require.Error(t, err)
	assert.False(t, errors.Is(err, retrieval.ErrUnavailable))
	assert.Contains(t, badSQL.lastSQL, `FROM "entity_embeddings"`)
}
