package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	mu      sync.Mutex
	queue   []fakeResponse
	calls   int
	configs []*genai.GenerateContentConfig
	last    []*genai.Content
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.configs = append(f.configs, config)
	f.last = contents
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(models *fakeModels, retries int) (*Generator, *[]time.Duration) {
	var waits []time.Duration
	return &Generator{
		models:     models,
		model:      "gemini-pro",
		maxRetries: retries,
		logger:     zap.NewNop(),
		wait: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}, &waits
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	g, waits := newTestGenerator(models, 2)

	output, err := g.Generate(context.Background(), []conversation.Turn{
		conversation.System("system"),
		conversation.User("message"),
		conversation.Assistant("earlier answer"),
		conversation.User("follow up"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if models.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.calls)
	}

	if len(*waits) != 1 || (*waits)[0] != baseBackoff {
		t.Fatalf("expected a single base backoff, got %v", *waits)
	}

	for _, config := range models.configs {
		if config == nil || config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
	}

	if len(models.last) != 3 || models.last[1].Role != genai.RoleModel {
		t.Fatalf("expected user/model/user contents, got %+v", models.last)
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	g, _ := newTestGenerator(models, 2)

	_, err := g.Generate(context.Background(), llm.UserPrompt("msg"))
	if !errors.Is(err, llm.ErrAPI) {
		t.Fatalf("expected api error after retries exhausted, got %v", err)
	}

	if models.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.calls)
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	g, _ := newTestGenerator(models, 3)

	if _, err := g.Generate(context.Background(), llm.UserPrompt("msg")); err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if models.calls != 1 {
		t.Fatalf("expected single call, got %d", models.calls)
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g, _ := newTestGenerator(models, 3)

	if _, err := g.Generate(context.Background(), llm.UserPrompt("msg")); !errors.Is(err, llm.ErrAPI) {
		t.Fatalf("expected api error, got %v", err)
	}
	if models.calls != 1 {
		t.Fatalf("expected single call, got %d", models.calls)
	}
}

func TestGeneratorEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(&genai.GenerateContentResponse{}, nil)

	g, _ := newTestGenerator(models, 1)

	if _, err := g.Generate(context.Background(), llm.UserPrompt("msg")); !errors.Is(err, llm.ErrAPI) {
		t.Fatalf("expected api error for empty response, got %v", err)
	}
}
