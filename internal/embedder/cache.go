package embedder

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/rueidis"
)

const cacheKeyPrefix = "leadscout:emb:"

type RedisConfig struct {
	Addrs    []string
	Password string
	TTL      time.Duration
}

// RedisCache keeps vectors as little-endian float32 blobs.
type RedisCache struct {
	client rueidis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &RedisCache{client: client, ttl: cfg.TTL}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() {
	c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, hash string) ([]float32, bool, error) {
	cmd := c.client.B().Get().Key(cacheKeyPrefix + hash).Build()
	raw, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", hash, err)
	}
	vec, err := DecodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, hash string, vec []float32) error {
	key := cacheKeyPrefix + hash
	val := string(EncodeVector(vec))
	var cmd rueidis.Completed
	if c.ttl > 0 {
		cmd = c.client.B().Set().Key(key).Value(val).Ex(c.ttl).Build()
	} else {
		cmd = c.client.B().Set().Key(key).Value(val).Build()
	}
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", hash, err)
	}
	return nil
}

func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func DecodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

// MapCache is an in-process VectorCache used when no Redis is configured.
type MapCache struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

func NewMapCache() *MapCache {
	return &MapCache{vecs: map[string][]float32{}}
}

func (c *MapCache) Get(_ context.Context, hash string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vecs[hash]
	return v, ok, nil
}

func (c *MapCache) Set(_ context.Context, hash string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vecs[hash] = append([]float32(nil), vec...)
	return nil
}
