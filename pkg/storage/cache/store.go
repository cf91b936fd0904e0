// Package cache 用 Redis 给对象库加一层读缓存
//
// 对象是内容寻址且不可变的，缓存永远不需要失效：
// 存在性标记一旦写入就永远为真，缓存的内容也永远正确。
// 树和提交很小又会被反复读取 (导航、历史遍历)，所以连内容一起缓存；
// 大的文档内容只缓存存在性。
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gitdb/pkg/core"
	"gitdb/pkg/storage"
	"gitdb/pkg/types"

	"github.com/redis/go-redis/v9"
)

const (
	hasPrefix = "gitdb:has:"
	objPrefix = "gitdb:obj:"

	// DefaultMaxObjectSize 是缓存内容的对象大小上限
	DefaultMaxObjectSize = 64 << 10
)

type Config struct {
	RedisURL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 0 表示永不过期

	// MaxObjectSize 以内的对象连内容一起缓存
	// 0 使用 DefaultMaxObjectSize，负数表示只缓存存在性
	MaxObjectSize int
}

// CachedStore 是 storage.Store 的装饰器
type CachedStore struct {
	backend storage.Store
	client  *redis.Client
	ttl     time.Duration
	maxSize int
}

// NewCachedStore 连接 Redis 并包装 backend，连接失败立即返回错误
func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(backend, client, cfg), nil
}

// New 使用已有的 Redis 客户端构造缓存层，不做连接检查
func New(backend storage.Store, client *redis.Client, cfg Config) *CachedStore {
	maxSize := cfg.MaxObjectSize
	if maxSize == 0 {
		maxSize = DefaultMaxObjectSize
	}
	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		maxSize: maxSize,
	}
}

// Close 关闭 Redis 连接池，不会关闭底层存储
func (s *CachedStore) Close() error {
	return s.client.Close()
}

func hasKey(hash types.Hash) string { return hasPrefix + string(hash) }
func objKey(hash types.Hash) string { return objPrefix + string(hash) }

func (s *CachedStore) cacheable(size int) bool {
	return s.maxSize > 0 && size <= s.maxSize
}

// Has 优先查 Redis；Redis 故障时降级为直接查底层存储
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	n, err := s.client.Exists(ctx, hasKey(hash), objKey(hash)).Result()
	if err != nil {
		slog.WarnContext(ctx, "redis exists failed, falling back to backend",
			slog.String("hash", hash.Short()),
			slog.String("err", err.Error()),
		)
	} else if n > 0 {
		return true, nil
	}

	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}
	if found {
		s.set(ctx, hasKey(hash), "1")
	}
	return found, nil
}

// Put 写穿到底层存储，成功后再写缓存
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, hasKey(obj.ID()), "1", s.ttl)
		if data := obj.Bytes(); s.cacheable(len(data)) {
			p.Set(ctx, objKey(obj.ID()), data, s.ttl)
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "redis set failed",
			slog.String("hash", obj.ID().Short()),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

// Get 先读缓存的内容，未命中时读底层存储并回填小对象
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	data, err := s.client.Get(ctx, objKey(hash)).Bytes()
	switch {
	case err == nil:
		return io.NopCloser(bytes.NewReader(data)), nil
	case !errors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "redis get failed, falling back to backend",
			slog.String("hash", hash.Short()),
			slog.String("err", err.Error()),
		)
	}

	rc, err := s.backend.Get(ctx, hash)
	if err != nil || s.maxSize <= 0 {
		return rc, err
	}

	head, err := io.ReadAll(io.LimitReader(rc, int64(s.maxSize)+1))
	if err != nil {
		rc.Close()
		return nil, err
	}
	if len(head) > s.maxSize {
		// 大对象：把已经读出的部分接回去，剩下的继续从底层流式读取
		return struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), rc), rc}, nil
	}
	rc.Close()

	s.set(ctx, objKey(hash), head)
	return io.NopCloser(bytes.NewReader(head)), nil
}

// ExpandHash 透传，缓存里没有完整的 Key 列表
func (s *CachedStore) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, short)
}

func (s *CachedStore) set(ctx context.Context, key string, value any) {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "redis set failed",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
	}
}
