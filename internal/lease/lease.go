package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"grid-trader/internal/config"
)

// ErrNotAcquired 表示租约已被其他实例持有。
var ErrNotAcquired = errors.New("lease: 租约已被其他实例持有")

// Release 释放已获得的租约。
type Release func(ctx context.Context) error

// Lease 保证同一时刻只有一个实例在执行网格周期。
type Lease interface {
	Acquire(ctx context.Context) (Release, error)
	Close() error
}

// Noop 为单实例部署使用的空租约。
type Noop struct{}

// Acquire 总是成功。
func (Noop) Acquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// Close 无操作。
func (Noop) Close() error { return nil }

// 仅当值仍为本实例写入的 token 时才删除。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease 基于 SET NX PX 的 Redis 租约。
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLease 创建 Redis 租约。
func NewRedisLease(cfg config.LeaseConfig, logger *zap.Logger) *RedisLease {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLease{
		client: rdb,
		key:    cfg.Key,
		ttl:    ttl,
		logger: logger,
	}
}

// New 按配置返回 Redis 租约或空租约。
func New(cfg config.LeaseConfig, logger *zap.Logger) Lease {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewRedisLease(cfg, logger)
}

// Acquire 尝试获得租约，已被持有时返回 ErrNotAcquired。
func (l *RedisLease) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lease: 获取租约失败: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	l.logger.Debug("已获得租约", zap.String("key", l.key), zap.Duration("ttl", l.ttl))
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("lease: 释放租约失败: %w", err)
		}
		return nil
	}, nil
}

// Close 关闭 Redis 连接。
func (l *RedisLease) Close() error {
	return l.client.Close()
}
