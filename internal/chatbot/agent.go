package chatbot

import (
	"context"

	"github.com/spigell/recruitbot/internal/intent"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/logger"
	"github.com/spigell/recruitbot/internal/prompt"
	"github.com/spigell/recruitbot/internal/tools"
)

// Agent answers with structured data for the website instead of prose. It
// never reads or writes the conversation history.
func (b *Bot) Agent(ctx context.Context, message, uploadPath string) (*tools.Response, error) {
	if tool, ok := b.tools[message]; ok {
		return tool.Respond(ctx, uploadPath)
	}

	label := b.agentClassifier.Classify(ctx, message)
	b.observeIntent(label)
	b.logger.Info("agent intent", logger.Intent(string(label)))

	switch label {
	case intent.LabelJD:
		return b.extract(ctx, label, prompt.ExtractJobQuery, message)
	case intent.LabelCompanyInfo:
		return b.extract(ctx, label, prompt.ExtractCompanyQuery, message)
	case intent.LabelLogin, intent.LabelRegister, intent.LabelForgotPassword, intent.LabelApplications, intent.LabelReviewCV:
		return &tools.Response{Intent: string(label)}, nil
	default:
		return &tools.Response{Intent: string(intent.LabelUnknown), Message: unknownAgentMessage}, nil
	}
}

func (b *Bot) extract(ctx context.Context, label intent.Label, id prompt.ID, message string) (*tools.Response, error) {
	text, err := prompt.Render(id, prompt.Args{prompt.ArgUserInput: message})
	if err != nil {
		return nil, err
	}

	raw, err := b.generator.Generate(ctx, llm.UserPrompt(text))
	if err != nil {
		return nil, err
	}

	return &tools.Response{Intent: string(label), Features: llm.StripReasoning(raw)}, nil
}
