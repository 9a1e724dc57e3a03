// Package openai implements the hosted backend on any OpenAI compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
)

const defaultModel = "gpt-4o-mini"

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

type Client struct {
	client      chatCompleter
	model       string
	temperature float32
}

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

func New(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	config := goopenai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		config.BaseURL = baseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	return &Client{
		client:      goopenai.NewClientWithConfig(config),
		model:       model,
		temperature: opts.Temperature,
	}, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, turns []conversation.Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("at least one turn is required")
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    roleOf(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", llm.ErrAPI)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func roleOf(role conversation.Role) string {
	switch role {
	case conversation.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case conversation.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: failed to create chat completion: %w", llm.ErrAPI, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: failed to create chat completion: %w", llm.ErrAPI, err)
	}
	return fmt.Errorf("failed to create chat completion: %w", llm.WrapTransport(err))
}
