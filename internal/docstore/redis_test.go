package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHash struct {
	data map[string]map[string]string
	err  error
}

func newFakeHash() *fakeHash {
	return &fakeHash{data: map[string]map[string]string{}}
}

func (f *fakeHash) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	out := map[string]string{}
	for k, v := range f.data[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeHash) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.data[key] == nil {
		f.data[key] = map[string]string{}
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.data[key][values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHash) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	var n int64
	for _, field := range fields {
		if _, ok := f.data[key][field]; ok {
			delete(f.data[key], field)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisRoundTrip(t *testing.T) {
	seq := int64(0)
	orig := nowSeq
	nowSeq = func() int64 { seq++; return seq }
	defer func() { nowSeq = orig }()

	ctx := context.Background()
	hash := newFakeHash()
	store := NewRedis(hash, "", nil)

	require.NoError(t, store.Write(ctx, "recruitment website intergrate ai", Document{"key": "k1", "id": 7, "score": 80}))
	require.NoError(t, store.Write(ctx, "recruitment website intergrate ai", Document{"key": "k2", "id": 7}))

	assert.Len(t, hash.data["recruitbot:docs:recruitment website intergrate ai"], 2)

	got, err := FindOne(ctx, store, "recruitment website intergrate ai", Filter{"key": "k1", "id": 7})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(80), got["score"])

	n, err := store.Delete(ctx, "recruitment website intergrate ai", Filter{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err := store.Read(ctx, "recruitment website intergrate ai", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRedisSkipsMalformedDocuments(t *testing.T) {
	hash := newFakeHash()
	hash.data["p:c"] = map[string]string{"bad": "{not json", "good": `{"seq":1,"doc":{"key":"a"}}`}
	store := NewRedis(hash, "p:", nil)

	docs, err := store.Read(context.Background(), "c", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0]["key"])
}

func TestRedisErrorsAreUnavailable(t *testing.T) {
	hash := newFakeHash()
	hash.err = errors.New("connection refused")
	store := NewRedis(hash, "", nil)

	_, err := store.Read(context.Background(), "c", nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = store.Write(context.Background(), "c", Document{"a": 1})
	assert.ErrorIs(t, err, ErrUnavailable)
}
