// Package embedding turns query text into vectors for the retrieval index.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
)

// Embedder produces a unit length vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Normalize scales vec to unit length. Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}

// Cached memoizes embeddings of repeated queries. Reflected queries repeat a
// lot within one conversation.
type Cached struct {
	next  Embedder
	cache *cache.Cache
}

func NewCached(next Embedder, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, vec, cache.DefaultExpiration)
	return vec, nil
}
