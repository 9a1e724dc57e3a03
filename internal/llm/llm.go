// Package llm defines the text generation capability shared by every backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/spigell/recruitbot/internal/conversation"
)

var (
	// ErrConnectivity reports that the model endpoint could not be reached.
	ErrConnectivity = errors.New("language model unreachable")
	// ErrTimeout reports that the model did not answer in time.
	ErrTimeout = errors.New("language model timed out")
	// ErrAPI reports a non-success answer from the model endpoint.
	ErrAPI = errors.New("language model api error")
)

// Generator turns an ordered list of turns into the model's next message.
type Generator interface {
	Generate(ctx context.Context, turns []conversation.Turn) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, turns []conversation.Turn) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, turns []conversation.Turn) (string, error) {
	return f(ctx, turns)
}

// UserPrompt wraps a rendered prompt into the single user turn every
// pipeline stage sends.
func UserPrompt(prompt string) []conversation.Turn {
	return []conversation.Turn{conversation.User(prompt)}
}

// WrapTransport classifies a transport level failure as ErrTimeout or
// ErrConnectivity. Errors already carrying one of the kinds are returned as is.
func WrapTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectivity) || errors.Is(err, ErrAPI) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}

var reasoningBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks emitted by reasoning
// models. A dangling closing tag drops everything before it.
func StripReasoning(text string) string {
	text = reasoningBlock.ReplaceAllString(text, "")
	if idx := strings.LastIndex(strings.ToLower(text), "</think>"); idx != -1 {
		text = text[idx+len("</think>"):]
	}
	return strings.TrimSpace(text)
}
