// Package reflection condenses a conversation into one standalone query.
package reflection

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/prompt"
)

const (
	DefaultMaxTurns = 100

	// EmptyConversation is returned when there is nothing to reflect on.
	EmptyConversation = "Không có hội thoại để phân tích."

	userLabel      = "👤 Người dùng: "
	assistantLabel = "🤖 Bot: "
)

var leadIns = []string{
	"Câu hỏi tổng hợp:",
	"Câu tóm tắt:",
	"Tóm tắt:",
	"Summary:",
	"Query:",
	"Người dùng muốn:",
	"Yêu cầu:",
}

type Reflector struct {
	generator llm.Generator
	maxTurns  int
	logger    *zap.Logger
}

func New(generator llm.Generator, maxTurns int, logger *zap.Logger) *Reflector {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reflector{generator: generator, maxTurns: maxTurns, logger: logger}
}

// Reflect returns a single query capturing the intent of the latest user
// turn in the context of the preceding ones. turns is not modified.
func (r *Reflector) Reflect(ctx context.Context, turns []conversation.Turn) (string, error) {
	if len(turns) > r.maxTurns {
		turns = turns[len(turns)-r.maxTurns:]
	}

	lines := make([]string, 0, len(turns))
	var only string
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		lines = append(lines, label(turn.Role)+text)
		only = text
	}

	switch len(lines) {
	case 0:
		return EmptyConversation, nil
	case 1:
		return only, nil
	}

	text, err := prompt.Render(prompt.Reflection, prompt.Args{
		prompt.ArgConversation: strings.Join(lines, "\n"),
	})
	if err != nil {
		return "", err
	}

	raw, err := r.generator.Generate(ctx, llm.UserPrompt(text))
	if err != nil {
		return "", fmt.Errorf("reflect conversation: %w", err)
	}

	query := Clean(raw)
	r.logger.Debug("conversation reflected",
		zap.Int("turns", len(lines)),
		zap.String("query", query),
	)
	return query, nil
}

// Clean strips reasoning blocks, one pair of surrounding quotes and known
// lead-in prefixes from a model answer.
func Clean(raw string) string {
	s := llm.StripReasoning(raw)
	s = unquote(s)
	for _, prefix := range leadIns {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			s = unquote(s)
		}
	}
	return strings.TrimSpace(s)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	pairs := [][2]string{{`"`, `"`}, {`'`, `'`}, {"“", "”"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}

func label(role conversation.Role) string {
	switch role {
	case conversation.RoleUser:
		return userLabel
	case conversation.RoleAssistant, "model", "bot":
		return assistantLabel
	default:
		return string(role) + ": "
	}
}
