// Package gemini implements the hosted backend on the Google GenAI API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	baseBackoff       = 2 * time.Second
	maxRetryDelay     = 30 * time.Second
)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client.
type Generator struct {
	models     contentModels
	model      string
	maxRetries int
	logger     *zap.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

type Options struct {
	APIKey     string
	Model      string
	MaxRetries int
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, opts Options, logger *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		models:     client.Models,
		model:      model,
		maxRetries: retries,
		logger:     logger,
		wait:       utils.WaitFor,
	}, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate sends the conversation to Gemini. System turns become the system
// instruction, assistant turns are sent with the model role.
func (g *Generator) Generate(ctx context.Context, turns []conversation.Turn) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	contents, config := toContents(turns)
	if len(contents) == 0 {
		return "", errors.New("prompt must not be empty")
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			return collectText(resp)
		}

		lastErr = err
		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries {
			break
		}

		g.logger.Warn("temporary gemini error, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := g.wait(ctx, delay); err != nil {
			return "", llm.WrapTransport(err)
		}
	}

	return "", classify(lastErr)
}

func toContents(turns []conversation.Turn) ([]*genai.Content, *genai.GenerateContentConfig) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		switch turn.Role {
		case conversation.RoleSystem:
			system = append(system, text)
		case conversation.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}})
		}
	}

	var config *genai.GenerateContentConfig
	if len(system) > 0 {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}},
		}
	}
	return contents, config
}

func collectText(resp *genai.GenerateContentResponse) (string, error) {
	var builder strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				text := strings.TrimSpace(part.Text)
				if text == "" {
					continue
				}
				if builder.Len() > 0 {
					builder.WriteString("\n")
				}
				builder.WriteString(text)
			}
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", fmt.Errorf("%w: gemini api returned empty response", llm.ErrAPI)
	}

	return output, nil
}

var retryAfter = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

// retryDelay reports whether err is worth another attempt and how long to wait.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	if apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError {
		return 0, false
	}

	delay := baseBackoff * time.Duration(1<<(attempt-1))
	if m := retryAfter.FindStringSubmatch(apiErr.Message); m != nil {
		seconds, parseErr := strconv.ParseFloat(m[1], 64)
		if parseErr == nil {
			delay = time.Duration(seconds * float64(time.Second))
		}
	}

	if delay > maxRetryDelay {
		return 0, false
	}
	return delay, true
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: generate content: %w", llm.ErrAPI, err)
	}
	return fmt.Errorf("generate content: %w", llm.WrapTransport(err))
}
