package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
)

func TestGenerateSendsTurnsInOrder(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "  Chào bạn!  "}})
	}))
	defer srv.Close()

	client, err := New(Options{BaseURL: srv.URL + "/", Model: "qwen3:8b", Temperature: 0.2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := client.Generate(context.Background(), []conversation.Turn{
		conversation.System("seed"),
		conversation.User("xin chào"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out != "Chào bạn!" {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != "qwen3:8b" || got.Stream {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "xin chào" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.Options["temperature"] != 0.2 {
		t.Fatalf("expected temperature option, got %v", got.Options)
	}
}

func TestGenerateClassifiesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	client, err := New(Options{BaseURL: srv.URL, Model: "missing"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Generate(context.Background(), llm.UserPrompt("hi"))
	if !errors.Is(err, llm.ErrAPI) {
		t.Fatalf("expected api error, got %v", err)
	}

	srv.Close()
	_, err = client.Generate(context.Background(), llm.UserPrompt("hi"))
	if !errors.Is(err, llm.ErrConnectivity) {
		t.Fatalf("expected connectivity error after server shutdown, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client, err := New(Options{BaseURL: srv.URL, Model: "slow", Timeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Generate(context.Background(), llm.UserPrompt("hi"))
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New(Options{}, nil); err == nil {
		t.Fatalf("expected error without model")
	}
}
