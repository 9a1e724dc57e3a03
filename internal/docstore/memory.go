package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type memoryEntry struct {
	seq uint64
	doc Document
}

// Memory keeps documents in process. Entries never expire.
type Memory struct {
	mu    sync.Mutex
	items *cache.Cache
	seq   uint64
}

func NewMemory() *Memory {
	return &Memory{items: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) Read(_ context.Context, collection string, filter Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.matching(collection, filter)
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, clone(e.doc))
	}
	return docs, nil
}

func (m *Memory) Write(_ context.Context, collection string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.items.Set(key(collection, uuid.NewString()), memoryEntry{seq: m.seq, doc: clone(doc)}, cache.NoExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection string, filter Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	prefix := key(collection, "")
	for k, item := range m.items.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if filter.Matches(item.Object.(memoryEntry).doc) {
			m.items.Delete(k)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) matching(collection string, filter Filter) []memoryEntry {
	prefix := key(collection, "")
	var out []memoryEntry
	for k, item := range m.items.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		entry := item.Object.(memoryEntry)
		if filter.Matches(entry.doc) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func key(collection, id string) string {
	return collection + "\x00" + id
}
