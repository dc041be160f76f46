// Package cache holds the optional Redis cache for query embeddings.
// Embedding a search string costs a model host round trip; repeated
// queries (typeahead, pagination) hit the cache instead.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/utils"
)

const embedTTL = 15 * time.Minute

// EmbedCache caches query-text embeddings per model. A nil *EmbedCache is
// valid and caches nothing, so callers never branch on configuration.
type EmbedCache struct {
	rdb *redis.Client
	log *logger.Logger
}

// New returns nil when REDIS_ADDR is unset; the cache is strictly
// optional.
func New(log *logger.Logger) *EmbedCache {
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: utils.GetEnv("REDIS_PASSWORD", "", log),
	})
	return &EmbedCache{rdb: rdb, log: log.With("service", "EmbedCache")}
}

func embedKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "fennec:embed:" + model + ":" + hex.EncodeToString(sum[:])
}

func (c *EmbedCache) Get(ctx context.Context, model, text string) []float32 {
	if c == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, embedKey(model, text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("embed cache read failed", "error", err)
		}
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

func (c *EmbedCache) Set(ctx context.Context, model, text string, vec []float32) {
	if c == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, embedKey(model, text), raw, embedTTL).Err(); err != nil {
		c.log.Warn("embed cache write failed", "error", err)
	}
}

func (c *EmbedCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
