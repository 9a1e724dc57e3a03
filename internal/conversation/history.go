// Package conversation holds the turn model and the per-bot history store.
package conversation

import "sync"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message in a conversation. Turns are values: once appended
// to a History they are never modified.
type Turn struct {
	Role    Role   `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

func User(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func Assistant(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }
func System(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }

// History is an ordered, append-only list of turns. Safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory returns a history seeded with a system turn when system is not empty.
func NewHistory(system string) *History {
	h := &History{}
	h.Clear(system)
	return h
}

func (h *History) Append(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Copy returns a snapshot that callers may modify freely.
func (h *History) Copy() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// GetAll is an alias for Copy kept for the listing endpoints.
func (h *History) GetAll() []Turn {
	return h.Copy()
}

// Clear drops every turn. A non-empty system text re-seeds the history with
// one system turn. Calling Clear twice yields the same state.
func (h *History) Clear(system string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
	if system != "" {
		h.turns = []Turn{System(system)}
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}
