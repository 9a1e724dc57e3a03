// Package jobstore reads job postings from the recruitment website database.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/retrieval"
)

var ErrNotFound = errors.New("job posting not found")

const lookupSQL = `SELECT row_to_json(j) FROM get_job_posting_infor_by_id($1) AS j LIMIT 1`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Source returns the descriptive text of a job posting.
type Source interface {
	JobPostingText(ctx context.Context, id int) (string, error)
}

type Postgres struct {
	db     querier
	logger *zap.Logger
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}

func NewPostgres(db querier, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) JobPostingText(ctx context.Context, id int) (string, error) {
	var raw []byte
	if err := p.db.QueryRow(ctx, lookupSQL, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return "", fmt.Errorf("query job posting %d: %w", id, err)
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", fmt.Errorf("decode job posting %d: %w", id, err)
	}

	job, err := retrieval.DecodeJobPosting(record)
	if err != nil {
		return "", err
	}

	p.logger.Info("job posting loaded", zap.Int("id", id), zap.String("position", job.PositionName))
	return BuildText(job), nil
}

// BuildText renders the labelled sentence list used both for evaluation
// prompts and as the cache key source. Empty fields are skipped.
func BuildText(job retrieval.JobPosting) string {
	fields := []struct {
		label string
		value string
	}{
		{"Vị trí tuyển dụng", job.PositionName},
		{"Mô tả công việc", job.JobDescription},
		{"Yêu cầu", job.Requirements},
		{"Mức lương", job.Salary},
		{"Hạn nộp", job.Deadline},
		{"Kinh nghiệm", job.ExperienceYear},
		{"Trình độ học vấn", job.EducationLevel},
		{"Phúc lợi", job.Benefits},
		{"Thời gian làm việc", job.WorkingTime},
		{"Công ty", job.CompanyName},
		{"Ngành nghề", job.Industries},
		{"Kỹ năng", job.Skills},
		{"Địa chỉ", job.Addresses},
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" && v != "0" {
			parts = append(parts, f.label+": "+v)
		}
	}
	return strings.TrimSpace(strings.Join(parts, ". "))
}
