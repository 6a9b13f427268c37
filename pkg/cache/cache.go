package cache

import (
	"context"
	"time"
)

// Cache 缓存接口
type Cache interface {
	// Get 获取缓存值
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set 设置缓存值
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key string) bool

	// Close 关闭缓存连接
	Close() error
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "local" 或 "redis"
	Type string `env:"CACHE_TYPE"`

	// Redis配置
	Redis RedisConfig

	// 本地缓存配置
	Local LocalConfig
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `env:"CACHE_REDIS_ADDR"`
	Password string `env:"CACHE_REDIS_PASSWORD"`
	DB       int    `env:"CACHE_REDIS_DB"`
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
}
