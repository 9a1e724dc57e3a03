// Package tools implements the CV and job posting tools reachable through
// the sentinel chat messages and agent mode.
package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	IntentEvaluateCV        = "evaluate_cv"
	IntentJobSuggestions    = "job-suggestions"
	IntentSimulateInterview = "simulate_interview"
)

const (
	CollectionCVEvaluation = "cv_evaluation"
	CollectionJobMatch     = "job_match_cv"
	CollectionJDEvaluation = "recruitment website intergrate ai"
)

// MissingCVMessage is shown when a CV tool runs before anything was uploaded.
const MissingCVMessage = "Không tìm thấy file CV. Vui lòng upload file CV trước khi yêu cầu đánh giá."

// Result carries a tool value. When the model answer could not be parsed,
// Fallback is set, Value holds the fallback payload and Err the parse error.
type Result[T any] struct {
	Value    T
	Err      error
	Fallback bool
}

// Response is the envelope returned to callers of tools and agent mode.
type Response struct {
	Intent   string `json:"intent"`
	Features any    `json:"extracted_features,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

type TextExtractor interface {
	ExtractText(path string) (string, error)
}

// Key identifies a document by the sha256 of its trimmed text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
