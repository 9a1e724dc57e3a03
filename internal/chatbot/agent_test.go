package chatbot

import (
	"context"
	"testing"

	"github.com/spigell/recruitbot/internal/intent"
	"github.com/spigell/recruitbot/internal/tools"
)

func TestAgent(t *testing.T) {
	tests := []struct {
		label        intent.Label
		wantIntent   string
		wantFeatures any
		wantMessage  string
	}{
		{label: intent.LabelJD, wantIntent: "intent_jd", wantFeatures: `{"title": "Java"}`},
		{label: intent.LabelCompanyInfo, wantIntent: "intent_company_info", wantFeatures: `{"title": "Java"}`},
		{label: intent.LabelLogin, wantIntent: "intent_login"},
		{label: intent.LabelForgotPassword, wantIntent: "intent_forgot-password"},
		{label: intent.LabelUnknown, wantIntent: "unknown", wantMessage: unknownAgentMessage},
		{label: intent.LabelChitchat, wantIntent: "unknown", wantMessage: unknownAgentMessage},
	}

	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			gen := &keyedGenerator{rules: []rule{{contains: "information extraction engine", answer: `<think>x</think>{"title": "Java"}`}}}
			bot := newBot(t, Options{Generator: gen, AgentClassifier: &stubClassifier{label: tt.label}})

			resp, err := bot.Agent(context.Background(), "Tìm job Java", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Intent != tt.wantIntent || resp.Message != tt.wantMessage {
				t.Fatalf("unexpected response: %+v", resp)
			}
			if tt.wantFeatures != nil && resp.Features != tt.wantFeatures {
				t.Fatalf("unexpected features: %#v", resp.Features)
			}
			if tt.wantFeatures == nil && resp.Features != nil {
				t.Fatalf("unexpected features: %#v", resp.Features)
			}
			if len(bot.History()) != 0 {
				t.Fatalf("agent mode must not touch history")
			}
		})
	}
}

func TestAgentSentinelUsesGivenUpload(t *testing.T) {
	tool := &stubTool{resp: &tools.Response{Intent: tools.IntentJobSuggestions}}
	classifier := &stubClassifier{}
	bot := newBot(t, Options{AgentClassifier: classifier, Tools: map[string]Tool{SentinelSuggestJobs: tool}})

	resp, err := bot.Agent(context.Background(), SentinelSuggestJobs, "uploads/cv.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Intent != tools.IntentJobSuggestions || tool.path != "uploads/cv.pdf" || classifier.calls != 0 {
		t.Fatalf("unexpected dispatch: %+v path=%q calls=%d", resp, tool.path, classifier.calls)
	}
}

func TestAgentPaddedSentinelIsClassified(t *testing.T) {
	tool := &stubTool{resp: &tools.Response{Intent: tools.IntentJobSuggestions}}
	classifier := &stubClassifier{label: intent.LabelUnknown}
	bot := newBot(t, Options{AgentClassifier: classifier, Tools: map[string]Tool{SentinelSuggestJobs: tool}})

	resp, err := bot.Agent(context.Background(), SentinelSuggestJobs+" ", "uploads/cv.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Intent != "unknown" || classifier.calls != 1 || tool.path != "" {
		t.Fatalf("unexpected dispatch: %+v path=%q calls=%d", resp, tool.path, classifier.calls)
	}
}
