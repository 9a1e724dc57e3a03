package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/docstore"
	"github.com/spigell/recruitbot/internal/jobstore"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/prompt"
)

// JDEvaluator grades the quality of a job posting. A cached evaluation is
// reused only while the posting text is unchanged.
type JDEvaluator struct {
	generator llm.Generator
	store     docstore.Store
	jobs      jobstore.Source
	logger    *zap.Logger
}

func NewJDEvaluator(generator llm.Generator, store docstore.Store, jobs jobstore.Source, logger *zap.Logger) *JDEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JDEvaluator{generator: generator, store: store, jobs: jobs, logger: logger}
}

func (e *JDEvaluator) Evaluate(ctx context.Context, id int) (docstore.Document, error) {
	text, err := e.jobs.JobPostingText(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job posting: %w", err)
	}

	key := Key(text)
	cached, err := docstore.FindOne(ctx, e.store, CollectionJDEvaluation, docstore.Filter{"key": key, "id": id})
	if err != nil {
		return nil, fmt.Errorf("read cached evaluation: %w", err)
	}
	if cached != nil {
		e.logger.Debug("jd evaluation cache hit", zap.Int("id", id))
		return cached, nil
	}

	rendered, err := prompt.Render(prompt.EvaluateJD, prompt.Args{prompt.ArgUserInput: text})
	if err != nil {
		return nil, err
	}

	raw, err := e.generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return nil, fmt.Errorf("evaluate job posting: %w", err)
	}

	// The posting changed or was never evaluated: older results for the id are stale.
	if n, err := e.store.Delete(ctx, CollectionJDEvaluation, docstore.Filter{"id": id}); err != nil {
		e.logger.Warn("failed to drop stale evaluations", zap.Int("id", id), zap.Error(err))
	} else if n > 0 {
		e.logger.Debug("dropped stale evaluations", zap.Int("id", id), zap.Int("count", n))
	}

	data, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	doc := withAnswer(docstore.Document{"key": key, "id": id}, data)
	if err := e.store.Write(ctx, CollectionJDEvaluation, doc); err != nil {
		e.logger.Warn("failed to cache jd evaluation", zap.Int("id", id), zap.Error(err))
	}

	return doc, nil
}

// AnalyzeJobDescription summarizes the skills, qualifications and duties of
// a free text job description as bullet points.
func AnalyzeJobDescription(ctx context.Context, generator llm.Generator, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("job description is empty")
	}

	rendered, err := prompt.Render(prompt.AnalyzeJobDescription, prompt.Args{prompt.ArgJobDescription: text})
	if err != nil {
		return "", err
	}

	out, err := generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return "", fmt.Errorf("analyze job description: %w", err)
	}
	return llm.StripReasoning(out), nil
}
