package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/logger"
)

// Filter is one post-processing step applied to search hits.
type Filter interface {
	Name() string
	Apply(ctx context.Context, records []Record) ([]Record, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status describes a configured filter.
type Status struct {
	Name    string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Recorder receives one observation per search.
type Recorder interface {
	ObserveRetrieval(entity, status string, elapsed time.Duration)
}

// Pipeline decorates a Searcher with logging, metrics and filters.
type Pipeline struct {
	searcher Searcher
	filters  []Filter
	logger   *zap.Logger
	recorder Recorder
}

func NewPipeline(searcher Searcher, logger *zap.Logger, recorder Recorder, filters ...Filter) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{searcher: searcher, filters: filters, logger: logger, recorder: recorder}
}

func (p *Pipeline) Search(ctx context.Context, query string, entity EntityType, topK int) ([]Record, error) {
	started := time.Now()
	records, err := p.searcher.Search(ctx, query, entity, topK)
	if err != nil {
		p.record(entity, "error", time.Since(started))
		return nil, err
	}
	p.record(entity, "ok", time.Since(started))

	p.logger.Debug("search finished",
		logger.Entity(string(entity)),
		zap.Int("top_k", topK),
		zap.Int("hits", len(records)),
	)

	return Run(ctx, p.logger, p.filters, records)
}

// Describe returns status entries for the configured filters.
func (p *Pipeline) Describe() []Status {
	statuses := make([]Status, 0, len(p.filters))
	for _, f := range p.filters {
		if reporter, ok := f.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: f.Name()})
	}
	return statuses
}

func (p *Pipeline) record(entity EntityType, status string, elapsed time.Duration) {
	if p.recorder != nil {
		p.recorder.ObserveRetrieval(string(entity), status, elapsed)
	}
}

// Run executes the supplied filters sequentially.
func Run(ctx context.Context, logger *zap.Logger, filters []Filter, records []Record) ([]Record, error) {
	if records == nil {
		records = []Record{}
	}
	for _, f := range filters {
		next, info, err := f.Apply(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}

		if logger != nil && info.Dropped > 0 {
			logger.Debug("filter step",
				zap.String("name", f.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		records = next
	}
	return records, nil
}
