package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "recruitbot:docs:"

var nowSeq = func() int64 { return time.Now().UnixNano() }

type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// Redis stores each collection as a hash of JSON documents.
type Redis struct {
	client hashClient
	prefix string
	logger *zap.Logger
}

// Connect opens a client from a redis:// URL, or a bare host:port address.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", ErrUnavailable, err)
	}
	return client, nil
}

func NewRedis(client hashClient, prefix string, logger *zap.Logger) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

type storedDocument struct {
	Seq int64    `json:"seq"`
	Doc Document `json:"doc"`
}

func (r *Redis) Read(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	stored, err := r.load(ctx, collection)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(stored))
	for _, s := range stored {
		if filter.Matches(s.Doc) {
			docs = append(docs, s.Doc)
		}
	}
	return docs, nil
}

func (r *Redis) Write(ctx context.Context, collection string, doc Document) error {
	data, err := json.Marshal(storedDocument{Seq: nowSeq(), Doc: doc})
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if err := r.client.HSet(ctx, r.prefix+collection, uuid.NewString(), string(data)).Err(); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrUnavailable, collection, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	stored, err := r.load(ctx, collection)
	if err != nil {
		return 0, err
	}

	var fields []string
	for _, s := range stored {
		if filter.Matches(s.Doc) {
			fields = append(fields, s.field)
		}
	}
	if len(fields) == 0 {
		return 0, nil
	}

	n, err := r.client.HDel(ctx, r.prefix+collection, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: delete from %s: %w", ErrUnavailable, collection, err)
	}
	return int(n), nil
}

type loadedDocument struct {
	storedDocument
	field string
}

func (r *Redis) load(ctx context.Context, collection string) ([]loadedDocument, error) {
	raw, err := r.client.HGetAll(ctx, r.prefix+collection).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, collection, err)
	}

	out := make([]loadedDocument, 0, len(raw))
	for field, value := range raw {
		var s storedDocument
		if err := json.Unmarshal([]byte(value), &s); err != nil {
			r.logger.Warn("skipping malformed document",
				zap.String("collection", collection),
				zap.String("field", field),
				zap.Error(err),
			)
			continue
		}
		out = append(out, loadedDocument{storedDocument: s, field: field})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
