package jobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/recruitbot/internal/retrieval"
)

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakeDB struct {
	row  fakeRow
	sql  string
	args []any
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = sql
	f.args = args
	return f.row
}

func TestJobPostingText(t *testing.T) {
	db := &fakeDB{row: fakeRow{data: []byte(`{
		"job_posting_id": 11,
		"position_name": "Backend Developer",
		"requirements": "Go, PostgreSQL",
		"salary": "20-30 triệu",
		"experience_year": 2,
		"name_of_company": "TechCorp",
		"skills": ["Go", "Docker"],
		"addresses": null
	}`)}}

	text, err := NewPostgres(db, nil).JobPostingText(context.Background(), 11)
	require.NoError(t, err)

	assert.Equal(t,
		"Vị trí tuyển dụng: Backend Developer. Yêu cầu: Go, PostgreSQL. Mức lương: 20-30 triệu. Kinh nghiệm: 2. Công ty: TechCorp. Kỹ năng: Go, Docker",
		text,
	)
	assert.Contains(t, db.sql, "get_job_posting_infor_by_id($1)")
	assert.Equal(t, []any{11}, db.args)
}

func TestJobPostingTextNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}

	_, err := NewPostgres(db, nil).JobPostingText(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobPostingTextQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	db := &fakeDB{row: fakeRow{err: boom}}

	_, err := NewPostgres(db, nil).JobPostingText(context.Background(), 5)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestBuildTextEmpty(t *testing.T) {
	assert.Equal(t, "", BuildText(retrieval.JobPosting{}))
}
