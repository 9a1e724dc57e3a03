package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/llm"
)

type stubGenerator struct {
	answer string
	err    error
	calls  int
	last   []conversation.Turn
}

func (s *stubGenerator) Generate(_ context.Context, turns []conversation.Turn) (string, error) {
	s.calls++
	s.last = turns
	return s.answer, s.err
}

func TestReflectEmptyConversation(t *testing.T) {
	gen := &stubGenerator{}
	r := New(gen, 0, nil)

	got, err := r.Reflect(context.Background(), []conversation.Turn{conversation.User("   ")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != EmptyConversation {
		t.Fatalf("unexpected query: %q", got)
	}
	if gen.calls != 0 {
		t.Fatalf("expected no model call, got %d", gen.calls)
	}
}

func TestReflectSingleTurnSkipsModel(t *testing.T) {
	gen := &stubGenerator{}
	r := New(gen, 0, nil)

	got, err := r.Reflect(context.Background(), []conversation.Turn{
		conversation.User("  Tìm việc Golang  "),
		conversation.Assistant(""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Tìm việc Golang" {
		t.Fatalf("unexpected query: %q", got)
	}
	if gen.calls != 0 {
		t.Fatalf("expected no model call, got %d", gen.calls)
	}
}

func TestReflectBuildsLabelledTranscript(t *testing.T) {
	gen := &stubGenerator{answer: "<think>hmm</think>\"Câu hỏi tổng hợp: Tìm việc Developer ở Hà Nội\""}
	r := New(gen, 0, nil)

	got, err := r.Reflect(context.Background(), []conversation.Turn{
		conversation.User("Tìm việc ở Hà Nội"),
		conversation.Assistant("Bạn muốn tìm công việc gì ở Hà Nội?"),
		conversation.User("Developer"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Tìm việc Developer ở Hà Nội" {
		t.Fatalf("unexpected query: %q", got)
	}

	if len(gen.last) != 1 || gen.last[0].Role != conversation.RoleUser {
		t.Fatalf("expected a single user turn, got %+v", gen.last)
	}
	sent := gen.last[0].Content
	for _, want := range []string{
		"👤 Người dùng: Tìm việc ở Hà Nội",
		"🤖 Bot: Bạn muốn tìm công việc gì ở Hà Nội?",
		"👤 Người dùng: Developer",
	} {
		if !strings.Contains(sent, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestReflectKeepsMostRecentTurns(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	r := New(gen, 2, nil)

	_, err := r.Reflect(context.Background(), []conversation.Turn{
		conversation.User("first question"),
		conversation.Assistant("answer"),
		conversation.User("second question"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(gen.last[0].Content, "first question") {
		t.Fatalf("expected oldest turn to be dropped")
	}
}

func TestReflectPropagatesModelError(t *testing.T) {
	gen := &stubGenerator{err: llm.ErrTimeout}
	r := New(gen, 0, nil)

	_, err := r.Reflect(context.Background(), []conversation.Turn{
		conversation.User("a"),
		conversation.User("b"),
	})
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestReflectDoesNotMutateInput(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	r := New(gen, 0, nil)

	turns := []conversation.Turn{conversation.User("a"), conversation.Assistant("b"), conversation.User("c")}
	before := append([]conversation.Turn(nil), turns...)
	if _, err := r.Reflect(context.Background(), turns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range turns {
		if turns[i] != before[i] {
			t.Fatalf("turn %d changed: %+v", i, turns[i])
		}
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  Tìm việc Java  ", want: "Tìm việc Java"},
		{name: "double quotes", in: `"Tìm việc Java"`, want: "Tìm việc Java"},
		{name: "single quotes", in: `'Tìm việc Java'`, want: "Tìm việc Java"},
		{name: "curly quotes", in: "“Tìm việc Java”", want: "Tìm việc Java"},
		{name: "summary prefix", in: "Summary: Tìm việc Java", want: "Tìm việc Java"},
		{name: "vietnamese prefix", in: "Người dùng muốn: Tìm việc Java", want: "Tìm việc Java"},
		{name: "reasoning", in: "<think>plan</think>\nQuery: Java", want: "Java"},
		{name: "unbalanced quote kept", in: `"Java`, want: `"Java`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Fatalf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
