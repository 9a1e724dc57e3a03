// Package session keeps one chatbot per user session and evicts idle ones.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/chatbot"
	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/logger"
)

const (
	DefaultTTL = time.Hour

	// Above this many sessions GetOrCreate sweeps idle ones first.
	lazyEvictThreshold = 10
)

var ErrNotFound = errors.New("session not found")

// Factory builds the chatbot owned by a new session.
type Factory func() (*chatbot.Bot, error)

type Recorder interface {
	SetActiveSessions(n int)
	ObserveEvicted(n int)
}

type Session struct {
	ID        string
	CreatedAt time.Time
	Bot       *chatbot.Bot

	// req serializes requests; mu guards the fields below.
	req          sync.Mutex
	mu           sync.Mutex
	lastActivity time.Time
	uploadPath   string
	busy         int
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) UploadPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadPath
}

// Info is the read-only view of a session.
type Info struct {
	ID           string              `json:"session_id"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
	UploadPath   string              `json:"upload_path,omitempty"`
	History      []conversation.Turn `json:"history"`
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory  Factory
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	recorder Recorder
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithRecorder(recorder Recorder) Option {
	return func(r *Registry) { r.recorder = recorder }
}

func NewRegistry(factory Factory, ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for id, creating it when unknown. An empty
// id always creates a session with a fresh uuid.
func (r *Registry) GetOrCreate(id string) (*Session, error) {
	if id != "" {
		if s, ok := r.Get(id); ok {
			return s, nil
		}
	}

	if r.Len() > lazyEvictThreshold {
		r.Evict()
	}

	bot, err := r.factory()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	} else if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	now := r.now()
	s := &Session{ID: id, CreatedAt: now, Bot: bot, lastActivity: now}
	r.sessions[id] = s
	r.logger.Info("session created", logger.Session(id))
	r.reportSize()
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Do runs fn as one request on the session. Requests on the same session are
// serialized and the session is never evicted while one is running.
func (r *Registry) Do(ctx context.Context, id string, fn func(ctx context.Context, s *Session) error) error {
	s, err := r.acquire(id)
	if err != nil {
		return err
	}

	defer func() {
		s.mu.Lock()
		s.busy--
		s.lastActivity = r.now()
		s.mu.Unlock()
	}()

	s.req.Lock()
	defer s.req.Unlock()

	return fn(ctx, s)
}

// acquire returns the session for id marked busy. The mark is taken under
// the registry lock so Evict either sees it or has already removed the
// session, in which case the lookup is repeated.
func (r *Registry) acquire(id string) (*Session, error) {
	for {
		s, err := r.GetOrCreate(id)
		if err != nil {
			return nil, err
		}

		r.mu.RLock()
		current, ok := r.sessions[s.ID]
		if ok && current == s {
			s.mu.Lock()
			s.busy++
			s.lastActivity = r.now()
			s.mu.Unlock()
			r.mu.RUnlock()
			return s, nil
		}
		r.mu.RUnlock()

		r.logger.Debug("session evicted before use, retrying", logger.Session(s.ID))
		id = s.ID
	}
}

func (r *Registry) SetUpload(id, path string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	s.uploadPath = path
	s.lastActivity = r.now()
	s.mu.Unlock()

	s.Bot.SetUpload(path)
	return nil
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.reportSize()
	return true
}

// List returns shortened session ids, oldest first.
func (r *Registry) List() []string {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, shortID(s.ID))
	}
	return ids
}

func (r *Registry) Info(id string) (Info, error) {
	s, ok := r.Get(id)
	if !ok {
		return Info{}, ErrNotFound
	}

	s.mu.Lock()
	info := Info{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		UploadPath:   s.uploadPath,
	}
	s.mu.Unlock()

	info.History = s.Bot.History()
	return info, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict removes sessions idle for at least the TTL and returns how many were
// removed. Busy sessions and sessions touched after the candidates were
// picked are kept.
func (r *Registry) Evict() int {
	now := r.now()

	type candidate struct {
		session *Session
		seen    time.Time
	}

	r.mu.RLock()
	var candidates []candidate
	for _, s := range r.sessions {
		s.mu.Lock()
		if s.busy == 0 && now.Sub(s.lastActivity) >= r.ttl {
			candidates = append(candidates, candidate{session: s, seen: s.lastActivity})
		}
		s.mu.Unlock()
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for _, c := range candidates {
		s := c.session
		s.mu.Lock()
		stale := s.busy == 0 && s.lastActivity.Equal(c.seen)
		s.mu.Unlock()
		if !stale {
			r.logger.Debug("session became active, skipping eviction", logger.Session(s.ID))
			continue
		}
		if current, ok := r.sessions[s.ID]; ok && current == s {
			delete(r.sessions, s.ID)
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Info("evicted idle sessions", zap.Int("count", evicted), zap.Int("remaining", len(r.sessions)))
		if r.recorder != nil {
			r.recorder.ObserveEvicted(evicted)
		}
		r.reportSize()
	}
	return evicted
}

// reportSize must be called with r.mu held.
func (r *Registry) reportSize() {
	if r.recorder != nil {
		r.recorder.SetActiveSessions(len(r.sessions))
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id + "..."
	}
	return id[:8] + "..."
}
