// Package intent maps a standalone user query onto a closed set of labels.
package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/prompt"
)

type Label string

const (
	LabelChitchat              Label = "intent_chitchat"
	LabelIncompleteRecruitment Label = "intent_incomplete_recruitment_question"
	LabelJD                    Label = "intent_jd"
	LabelCompanyInfo           Label = "intent_company_info"
	LabelReviewCV              Label = "intent_review_cv"
	LabelSuggestJob            Label = "intent_suggest_job"
	LabelCandidate             Label = "intent_candidate"
	LabelGuide                 Label = "intent_guide"
	LabelFeedback              Label = "intent_feedback"

	// Agent mode only.
	LabelLogin          Label = "intent_login"
	LabelRegister       Label = "intent_register"
	LabelForgotPassword Label = "intent_forgot-password"
	LabelApplications   Label = "intent_applications"
	LabelUnknown        Label = "unknown"
)

// Fields a recruitment answer can fill in.
const (
	FieldLocation Label = "location"
	FieldSkills   Label = "skills"
	FieldSalary   Label = "salary"
	FieldPosition Label = "position"
)

var chatLabels = []Label{
	LabelChitchat,
	LabelIncompleteRecruitment,
	LabelJD,
	LabelCompanyInfo,
	LabelReviewCV,
	LabelSuggestJob,
	LabelCandidate,
	LabelGuide,
	LabelFeedback,
}

var agentLabels = []Label{
	LabelJD,
	LabelCompanyInfo,
	LabelChitchat,
	LabelLogin,
	LabelRegister,
	LabelForgotPassword,
	LabelApplications,
	LabelReviewCV,
}

var fieldLabels = []Label{FieldLocation, FieldSkills, FieldSalary, FieldPosition}

// Labels returns the chat mode label set.
func Labels() []Label {
	return append([]Label(nil), chatLabels...)
}

// AgentLabels returns the agent mode label set.
func AgentLabels() []Label {
	return append([]Label(nil), agentLabels...)
}

// Parse normalizes raw model output and matches it against set. ok is false
// when nothing matches exactly.
func Parse(raw string, set []Label) (Label, bool) {
	s := normalize(raw)
	for _, l := range set {
		if s == string(l) {
			return l, true
		}
	}
	return "", false
}

func normalize(raw string) string {
	s := strings.TrimSpace(llm.StripReasoning(raw))
	s = strings.Trim(s, "\"'`“” \t\n")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}

// Classifier is the chat mode classifier. It never fails: model errors and
// unrecognized answers fall back to chitchat.
type Classifier struct {
	generator llm.Generator
	logger    *zap.Logger
	promptID  prompt.ID
	labels    []Label
	fallback  Label
}

func NewClassifier(generator llm.Generator, logger *zap.Logger) *Classifier {
	return newClassifier(generator, logger, prompt.ClassifyChatIntent, chatLabels, LabelChitchat)
}

// NewAgentClassifier builds the classifier used by agent mode, which knows
// navigation intents and reports LabelUnknown instead of chitchat.
func NewAgentClassifier(generator llm.Generator, logger *zap.Logger) *Classifier {
	return newClassifier(generator, logger, prompt.ClassifyAgentIntent, agentLabels, LabelUnknown)
}

// NewFieldClassifier tells which recruitment field (location, skills,
// salary, position) a message provides.
func NewFieldClassifier(generator llm.Generator, logger *zap.Logger) *Classifier {
	return newClassifier(generator, logger, prompt.ClassifyRecruitmentField, fieldLabels, LabelUnknown)
}

func newClassifier(generator llm.Generator, logger *zap.Logger, id prompt.ID, labels []Label, fallback Label) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		generator: generator,
		logger:    logger,
		promptID:  id,
		labels:    labels,
		fallback:  fallback,
	}
}

func (c *Classifier) Classify(ctx context.Context, query string) Label {
	text, err := prompt.Render(c.promptID, prompt.Args{prompt.ArgUserInput: query})
	if err != nil {
		c.logger.Error("failed to render classification prompt", zap.Error(err))
		return c.fallback
	}

	raw, err := c.generator.Generate(ctx, llm.UserPrompt(text))
	if err != nil {
		c.logger.Warn("classification failed, using fallback",
			zap.String("fallback", string(c.fallback)),
			zap.Error(err),
		)
		return c.fallback
	}

	label, ok := Parse(raw, c.labels)
	if !ok {
		c.logger.Warn("unrecognized intent",
			zap.String("raw", raw),
			zap.String("fallback", string(c.fallback)),
		)
		return c.fallback
	}

	c.logger.Debug("intent classified", zap.String("query", query), zap.String("label", string(label)))
	return label
}
