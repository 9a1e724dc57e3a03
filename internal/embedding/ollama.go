package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"
)

// ErrEmbedding marks failures of the embedding endpoint.
var ErrEmbedding = errors.New("embedding failed")

// Ollama calls the /api/embeddings endpoint of an Ollama server.
type Ollama struct {
	baseURL string
	model   string
	logger  *zap.Logger

	HTTPClient *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllama(baseURL, model string, timeout time.Duration, logger *zap.Logger) *Ollama {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ollama{
		baseURL:    baseURL,
		model:      model,
		logger:     logger,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug("make request", zap.String("url", req.URL.String()), zap.String("model", o.model))
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama embedding error: %s", ErrEmbedding, strings.TrimSpace(string(raw)))
	}

	var decoded ollamaResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrEmbedding, err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbedding)
	}

	values := make([]float32, len(decoded.Embedding))
	for i, v := range decoded.Embedding {
		values[i] = float32(v)
	}

	return Normalize(values), nil
}
