package llm

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/logger"
	"github.com/spigell/recruitbot/internal/utils"
)

const defaultMaxLogLength = 200

// Recorder receives one observation per generation request.
type Recorder interface {
	ObserveLLM(provider, status string, elapsed time.Duration)
}

type observed struct {
	next      Generator
	provider  string
	recorder  Recorder
	logger    *zap.Logger
	maxLogLen int
}

// Observe decorates a generator with request logging and, when recorder is
// not nil, metrics.
func Observe(next Generator, provider, model string, recorder Recorder, log *zap.Logger, maxLogLength int) Generator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &observed{
		next:      next,
		provider:  provider,
		recorder:  recorder,
		logger:    logger.WithModel(log, provider, model),
		maxLogLen: maxLogLength,
	}
}

func (o *observed) Generate(ctx context.Context, turns []conversation.Turn) (string, error) {
	var last string
	if len(turns) > 0 {
		last = turns[len(turns)-1].Content
	}

	o.logger.Debug("generate content request",
		zap.Int("turns", len(turns)),
		zap.Int("prompt_length", utf8.RuneCountInString(last)),
		zap.String("prompt_preview", utils.TruncateForLog(last, o.maxLogLen)),
	)

	started := time.Now()
	out, err := o.next.Generate(ctx, turns)
	elapsed := time.Since(started)

	if err != nil {
		o.record(statusOf(err), elapsed)
		o.logger.Warn("generate content failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", err
	}

	o.record("ok", elapsed)
	o.logger.Debug("generate content response",
		zap.Duration("elapsed", elapsed),
		zap.Int("response_length", utf8.RuneCountInString(out)),
		zap.String("response_preview", utils.TruncateForLog(out, o.maxLogLen)),
	)

	return out, nil
}

func (o *observed) record(status string, elapsed time.Duration) {
	if o.recorder != nil {
		o.recorder.ObserveLLM(o.provider, status, elapsed)
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectivity):
		return "unreachable"
	case errors.Is(err, ErrAPI):
		return "api_error"
	default:
		return "error"
	}
}
