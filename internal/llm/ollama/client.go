// Package ollama talks to a local Ollama server through its /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second

	contentType = "application/json"
)

type Client struct {
	baseURL     string
	model       string
	temperature float64
	logger      *zap.Logger

	HTTPClient *http.Client
}

type Options struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func New(opts Options, logger *zap.Logger) (*Client, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("ollama model is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:     baseURL,
		model:       model,
		temperature: opts.Temperature,
		logger:      logger,
		HTTPClient:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Model() string { return c.model }

// Generate sends the turns in order and returns the assistant message.
func (c *Client) Generate(ctx context.Context, turns []conversation.Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("at least one turn is required")
	}

	body := chatRequest{
		Model:    c.model,
		Messages: make([]chatMessage, 0, len(turns)),
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	}
	for _, turn := range turns {
		body.Messages = append(body.Messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	var response chatResponse
	if err := c.postJSON(ctx, "/api/chat", body, &response); err != nil {
		return "", err
	}

	if response.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", llm.ErrAPI, response.Error)
	}

	return strings.TrimSpace(response.Message.Content), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return llm.WrapTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.WrapTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama error: status %d, body: %s", llm.ErrAPI, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: decode ollama response: %w", llm.ErrAPI, err)
	}

	return nil
}
