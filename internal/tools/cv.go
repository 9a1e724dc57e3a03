package tools

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/docstore"
	"github.com/spigell/recruitbot/internal/document"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/prompt"
)

// CVEvaluator scores an uploaded CV. Evaluations are cached by CV content.
type CVEvaluator struct {
	generator llm.Generator
	store     docstore.Store
	extractor TextExtractor
	logger    *zap.Logger
}

func NewCVEvaluator(generator llm.Generator, store docstore.Store, extractor TextExtractor, logger *zap.Logger) *CVEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CVEvaluator{generator: generator, store: store, extractor: extractor, logger: logger}
}

func cvFallback(err error) docstore.Document {
	return docstore.Document{
		"summary": "Lỗi phân tích CV. Vui lòng thử lại.",
		"scores": map[string]any{
			"clarity":         0,
			"relevance":       0,
			"skills":          0,
			"projects":        0,
			"professionalism": 0,
			"overall":         0,
		},
		"strengths":           []any{},
		"weaknesses":          []any{},
		"recommendations":     []any{},
		"suggested_job_roles": []any{},
		"error":               err.Error(),
	}
}

// Evaluate returns the evaluation for the CV at path. Errors wrap
// document.ErrNotFound when nothing was uploaded.
func (e *CVEvaluator) Evaluate(ctx context.Context, path string) (Result[docstore.Document], error) {
	text, err := e.extractor.ExtractText(path)
	if err != nil {
		return Result[docstore.Document]{}, fmt.Errorf("extract cv: %w", err)
	}

	key := Key(text)
	cached, err := docstore.FindOne(ctx, e.store, CollectionCVEvaluation, docstore.Filter{"key": key})
	if err != nil {
		return Result[docstore.Document]{}, fmt.Errorf("read cached evaluation: %w", err)
	}
	if cached != nil {
		e.logger.Debug("cv evaluation cache hit", zap.String("key", key))
		return Result[docstore.Document]{Value: cached}, nil
	}

	rendered, err := prompt.Render(prompt.EvaluateCV, prompt.Args{prompt.ArgUserInput: text})
	if err != nil {
		return Result[docstore.Document]{}, err
	}

	raw, err := e.generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return Result[docstore.Document]{}, fmt.Errorf("evaluate cv: %w", err)
	}

	data, err := parseObject(raw)
	if err != nil {
		e.logger.Warn("cv evaluation is not valid json", zap.String("key", key), zap.Error(err))
		return Result[docstore.Document]{Value: cvFallback(err), Err: err, Fallback: true}, nil
	}

	doc := withAnswer(docstore.Document{"key": key}, data)
	if err := e.store.Write(ctx, CollectionCVEvaluation, doc); err != nil {
		e.logger.Warn("failed to cache cv evaluation", zap.String("key", key), zap.Error(err))
	}

	return Result[docstore.Document]{Value: doc}, nil
}

// Respond wraps Evaluate into the envelope returned to clients.
func (e *CVEvaluator) Respond(ctx context.Context, path string) (*Response, error) {
	res, err := e.Evaluate(ctx, path)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return &Response{Intent: IntentEvaluateCV, Error: MissingCVMessage}, nil
		}
		return nil, err
	}
	return &Response{Intent: IntentEvaluateCV, Features: res.Value}, nil
}
