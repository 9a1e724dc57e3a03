package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/recruitbot/internal/docstore"
	"github.com/spigell/recruitbot/internal/llm"
)

var (
	ErrParse = errors.New("parse model answer")

	codeFence = regexp.MustCompile("```(?:json)?")
)

// extractJSON drops reasoning blocks and markdown code fences.
func extractJSON(raw string) string {
	raw = llm.StripReasoning(raw)
	raw = codeFence.ReplaceAllString(raw, "")
	return strings.TrimSpace(raw)
}

// outermostObject cuts the text between the first '{' and the last '}'.
func outermostObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func parseObject(raw string) (map[string]any, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err == nil && data != nil {
		return data, nil
	}

	if err := json.Unmarshal([]byte(outermostObject(cleaned)), &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: not an object", ErrParse)
	}
	return data, nil
}

func coerceStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// withAnswer copies the model answer into doc. Fields already set on doc are
// cache identity and win over whatever the model emitted.
func withAnswer(doc docstore.Document, answer map[string]any) docstore.Document {
	for k, v := range answer {
		if _, reserved := doc[k]; reserved {
			continue
		}
		doc[k] = v
	}
	return doc
}
