// Package retrieval is the semantic search layer over the entity index.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnavailable reports that the index (or the embedder in front of it)
// cannot be reached.
var ErrUnavailable = errors.New("retrieval index unavailable")

type EntityType string

const (
	EntityCompany    EntityType = "company"
	EntityJobPosting EntityType = "job_posting"
	EntitySkill      EntityType = "skill"
)

// PayloadKey is the payload field carrying the entity type in the index.
const PayloadKey = "entity_type"

// Record is one search hit. Score is the cosine similarity reported by the index.
type Record struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Searcher runs a semantic query restricted to one entity type. No matches
// yields an empty slice and no error.
type Searcher interface {
	Search(ctx context.Context, query string, entity EntityType, topK int) ([]Record, error)
}

// Payloads strips scores, keeping the order of records.
func Payloads(records []Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, r.Payload)
	}
	return out
}

// FormatPayloads renders the payloads as the data block of a RAG prompt.
func FormatPayloads(records []Record) (string, error) {
	data, err := json.MarshalIndent(Payloads(records), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payloads: %w", err)
	}
	return string(data), nil
}
