// Package qdrant searches the entity collection through the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/embedding"
	"github.com/spigell/recruitbot/internal/retrieval"
)

const (
	DefaultCollection = "entities"
	defaultHNSWEf     = 128
	defaultTimeout    = 30 * time.Second
)

type Client struct {
	baseURL    string
	collection string
	apiKey     string
	hnswEf     int
	embedder   embedding.Embedder
	logger     *zap.Logger

	HTTPClient *http.Client
}

type Options struct {
	URL        string
	Collection string
	APIKey     string
	HNSWEf     int
	Timeout    time.Duration
}

type matchValue struct {
	Value string `json:"value"`
}

type fieldCondition struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type searchFilter struct {
	Must []fieldCondition `json:"must"`
}

type searchParams struct {
	HNSWEf int  `json:"hnsw_ef"`
	Exact  bool `json:"exact"`
}

type searchRequest struct {
	Vector      []float32    `json:"vector"`
	Limit       int          `json:"limit"`
	WithPayload bool         `json:"with_payload"`
	Filter      searchFilter `json:"filter"`
	Params      searchParams `json:"params"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
	Status any           `json:"status"`
}

func New(opts Options, embedder embedding.Embedder, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, errors.New("qdrant url is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}

	collection := strings.TrimSpace(opts.Collection)
	if collection == "" {
		collection = DefaultCollection
	}
	ef := opts.HNSWEf
	if ef <= 0 {
		ef = defaultHNSWEf
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		collection: collection,
		apiKey:     strings.TrimSpace(opts.APIKey),
		hnswEf:     ef,
		embedder:   embedder,
		logger:     logger,
		HTTPClient: &http.Client{Timeout: timeout},
	}, nil
}

// Search embeds query and returns the topK points of the given entity type.
func (c *Client) Search(ctx context.Context, query string, entity retrieval.EntityType, topK int) ([]retrieval.Record, error) {
	if topK <= 0 {
		return []retrieval.Record{}, nil
	}

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", retrieval.ErrUnavailable, err)
	}

	body, err := json.Marshal(searchRequest{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
		Filter: searchFilter{Must: []fieldCondition{{
			Key:   retrieval.PayloadKey,
			Match: matchValue{Value: string(entity)},
		}}},
		Params: searchParams{HNSWEf: c.hnswEf, Exact: false},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, url.PathEscape(c.collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()), zap.String("entity_type", string(entity)))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", retrieval.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("qdrant search error: %s - %s", resp.Status, strings.TrimSpace(string(raw)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w", retrieval.ErrUnavailable, err)
		}
		return nil, err
	}

	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode qdrant response: %w", err)
	}

	records := make([]retrieval.Record, 0, len(decoded.Result))
	for _, point := range decoded.Result {
		records = append(records, retrieval.Record{Score: point.Score, Payload: point.Payload})
	}
	return records, nil
}
