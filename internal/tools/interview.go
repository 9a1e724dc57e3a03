package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/document"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/prompt"
)

const interviewQuestions = 6

type Interview struct {
	Questions []string `json:"questions"`
}

type InterviewEvaluation struct {
	Answers map[string]string `json:"answers"`
	Results map[string]any    `json:"results"`
}

// InterviewSimulator asks questions grounded on a CV and grades the answers.
type InterviewSimulator struct {
	generator llm.Generator
	extractor TextExtractor
	logger    *zap.Logger
}

func NewInterviewSimulator(generator llm.Generator, extractor TextExtractor, logger *zap.Logger) *InterviewSimulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterviewSimulator{generator: generator, extractor: extractor, logger: logger}
}

func (s *InterviewSimulator) Simulate(ctx context.Context, path string) (Result[Interview], error) {
	text, err := s.extractor.ExtractText(path)
	if err != nil {
		return Result[Interview]{}, fmt.Errorf("extract cv: %w", err)
	}

	rendered, err := prompt.Render(prompt.SimulateInterview, prompt.Args{prompt.ArgUserInput: text})
	if err != nil {
		return Result[Interview]{}, err
	}

	raw, err := s.generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return Result[Interview]{}, fmt.Errorf("simulate interview: %w", err)
	}

	data, err := parseObject(raw)
	if err != nil {
		s.logger.Warn("interview questions are not valid json", zap.Error(err))
		return Result[Interview]{Value: Interview{Questions: []string{}}, Err: err, Fallback: true}, nil
	}

	questions := coerceStrings(data["questions"])
	if len(questions) != interviewQuestions {
		s.logger.Warn("unexpected number of interview questions",
			zap.Int("expected", interviewQuestions),
			zap.Int("got", len(questions)),
		)
	}
	if questions == nil {
		questions = []string{}
	}
	return Result[Interview]{Value: Interview{Questions: questions}}, nil
}

// Evaluate grades answers (question to answer) against the CV at path.
func (s *InterviewSimulator) Evaluate(ctx context.Context, path string, answers map[string]string) (InterviewEvaluation, error) {
	text, err := s.extractor.ExtractText(path)
	if err != nil {
		return InterviewEvaluation{}, fmt.Errorf("extract cv: %w", err)
	}

	encoded, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return InterviewEvaluation{}, fmt.Errorf("encode answers: %w", err)
	}

	rendered, err := prompt.Render(prompt.EvaluateInterview, prompt.Args{
		prompt.ArgUserInput: text,
		prompt.ArgAnswers:   string(encoded),
	})
	if err != nil {
		return InterviewEvaluation{}, err
	}

	raw, err := s.generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return InterviewEvaluation{}, fmt.Errorf("evaluate interview: %w", err)
	}

	results, err := parseObject(raw)
	if err != nil {
		return InterviewEvaluation{}, err
	}
	return InterviewEvaluation{Answers: answers, Results: results}, nil
}

func (s *InterviewSimulator) Respond(ctx context.Context, path string) (*Response, error) {
	res, err := s.Simulate(ctx, path)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return &Response{Intent: IntentSimulateInterview, Error: MissingCVMessage}, nil
		}
		return nil, err
	}
	return &Response{Intent: IntentSimulateInterview, Features: res.Value}, nil
}
