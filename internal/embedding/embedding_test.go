package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestOllamaEmbed(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{0, 2, 0}})
	}))
	defer srv.Close()

	vec, err := NewOllama(srv.URL, "", time.Second, nil).Embed(context.Background(), "Go developer")
	require.NoError(t, err)

	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, "Go developer", got.Prompt)
	assert.Equal(t, []float32{0, 1, 0}, vec)
}

func TestOllamaEmbedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "m", time.Second, nil).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbedding))
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text))}, nil
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCached(inner, time.Minute)

	first, err := cached.Embed(context.Background(), "abc")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "abc")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "abcd")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, inner.calls)
	assert.False(t, math.IsNaN(float64(first[0])))
}
