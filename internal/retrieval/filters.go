package retrieval

import (
	"context"
	"fmt"
	"strconv"
)

type nonEmptyFilter struct{}

// NewNonEmpty drops hits without payload.
func NewNonEmpty() Filter { return nonEmptyFilter{} }

func (nonEmptyFilter) Name() string { return "non_empty_payload" }

func (nonEmptyFilter) Apply(_ context.Context, records []Record) ([]Record, Step, error) {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if len(r.Payload) > 0 {
			kept = append(kept, r)
		}
	}
	return kept, step(len(records), len(kept)), nil
}

type minScoreFilter struct {
	threshold float64
}

// NewMinScore drops hits whose similarity is below threshold. A non-positive
// threshold keeps everything.
func NewMinScore(threshold float64) Filter { return &minScoreFilter{threshold: threshold} }

func (f *minScoreFilter) Name() string { return "min_score" }

func (f *minScoreFilter) Apply(_ context.Context, records []Record) ([]Record, Step, error) {
	if f.threshold <= 0 {
		return records, step(len(records), len(records)), nil
	}
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Score >= f.threshold {
			kept = append(kept, r)
		}
	}
	return kept, step(len(records), len(kept)), nil
}

func (f *minScoreFilter) Status() Status {
	return Status{Name: f.Name(), Details: map[string]string{"threshold": strconv.FormatFloat(f.threshold, 'f', -1, 64)}}
}

type dedupeFilter struct {
	keys []string
}

// NewDedupe keeps the first (best scored) hit per entity id. The id is read
// from the first of keys present in the payload; hits without any id are kept.
func NewDedupe(keys ...string) Filter {
	if len(keys) == 0 {
		keys = []string{"job_posting_id", "company_id"}
	}
	return &dedupeFilter{keys: keys}
}

func (f *dedupeFilter) Name() string { return "dedupe" }

func (f *dedupeFilter) Apply(_ context.Context, records []Record) ([]Record, Step, error) {
	seen := make(map[string]struct{}, len(records))
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		id, ok := f.idOf(r.Payload)
		if ok {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		kept = append(kept, r)
	}
	return kept, step(len(records), len(kept)), nil
}

func (f *dedupeFilter) idOf(payload map[string]any) (string, bool) {
	for _, key := range f.keys {
		if v, ok := payload[key]; ok && v != nil {
			return key + "=" + fmt.Sprint(v), true
		}
	}
	return "", false
}

func step(initial, left int) Step {
	return Step{Initial: initial, Dropped: initial - left, Left: left}
}

// DefaultFilters is the post-processing applied to every search.
func DefaultFilters(minScore float64) []Filter {
	return []Filter{NewNonEmpty(), NewMinScore(minScore), NewDedupe()}
}
