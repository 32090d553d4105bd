package keycache

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisKeyCacheOptions struct {
	// host:port 地址。
	Endpoint string `cfg:"endpoint"`

	// 集群节点的 host:port 地址列表。
	Endpoints []string `cfg:"endpoints"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db" def:"0"`

	// 放弃前的最大重试次数，-1 禁用重试。
	MaxRetries      int           `cfg:"maxRetries" def:"3"`
	MinRetryBackoff time.Duration `cfg:"minRetryBackoff" def:"8ms"`
	MaxRetryBackoff time.Duration `cfg:"maxRetryBackoff" def:"512ms"`
	DialTimeout     time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout     time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout    time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize        int           `cfg:"poolSize" def:"100"`
	PoolTimeout     time.Duration `cfg:"poolTimeout" def:"4s"`
	MinIdleConns    int           `cfg:"minIdleConns" def:"0"`
	ConnMaxIdleTime time.Duration `cfg:"connMaxIdleTime" def:"30m"`

	// 键前缀，必须与计算引擎一致
	UserKeyPrefix  string `cfg:"userKeyPrefix" def:"uk:"`
	AdminKeyPrefix string `cfg:"adminKeyPrefix" def:"ak:"`
	LimitPrefix    string `cfg:"limitPrefix" def:"l:"`
}

type RedisKeyCache struct {
	client redis.UniversalClient

	userKeyPrefix  string
	adminKeyPrefix string
	limitPrefix    string
}

func NewRedisKeyCacheWithOptions(options *RedisKeyCacheOptions) (*RedisKeyCache, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	var client redis.UniversalClient
	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:            options.Endpoint,
			Username:        options.Username,
			Password:        options.Password,
			DB:              options.DB,
			MaxRetries:      options.MaxRetries,
			MinRetryBackoff: options.MinRetryBackoff,
			MaxRetryBackoff: options.MaxRetryBackoff,
			DialTimeout:     options.DialTimeout,
			ReadTimeout:     options.ReadTimeout,
			WriteTimeout:    options.WriteTimeout,
			PoolSize:        options.PoolSize,
			PoolTimeout:     options.PoolTimeout,
			MinIdleConns:    options.MinIdleConns,
			ConnMaxIdleTime: options.ConnMaxIdleTime,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           options.Endpoints,
			Username:        options.Username,
			Password:        options.Password,
			MaxRetries:      options.MaxRetries,
			DialTimeout:     options.DialTimeout,
			ReadTimeout:     options.ReadTimeout,
			WriteTimeout:    options.WriteTimeout,
			PoolSize:        options.PoolSize,
			PoolTimeout:     options.PoolTimeout,
			MinIdleConns:    options.MinIdleConns,
			ConnMaxIdleTime: options.ConnMaxIdleTime,
		})
	} else {
		return nil, errors.Errorf("Endpoint or Endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return &RedisKeyCache{
		client:         client,
		userKeyPrefix:  withDefault(options.UserKeyPrefix, "uk:"),
		adminKeyPrefix: withDefault(options.AdminKeyPrefix, "ak:"),
		limitPrefix:    withDefault(options.LimitPrefix, "l:"),
	}, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (c *RedisKeyCache) SetUserKey(ctx context.Context, userKey string, workerID uint64) error {
	if err := c.client.Set(ctx, c.userKeyPrefix+userKey, strconv.FormatUint(workerID, 10), 0).Err(); err != nil {
		return errors.Wrap(err, "redis.Set user key failed")
	}
	return nil
}

func (c *RedisKeyCache) DeleteUserKey(ctx context.Context, userKey string) error {
	if err := c.client.Del(ctx, c.userKeyPrefix+userKey).Err(); err != nil {
		return errors.Wrap(err, "redis.Del user key failed")
	}
	return nil
}

func (c *RedisKeyCache) GetWorkerIDByUserKey(ctx context.Context, userKey string) (uint64, error) {
	val, err := c.get(ctx, c.userKeyPrefix+userKey)
	if err != nil {
		return 0, err
	}
	workerID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid worker id %q", val)
	}
	return workerID, nil
}

func (c *RedisKeyCache) SetAdminKey(ctx context.Context, adminKey string, userID string) error {
	if err := c.client.Set(ctx, c.adminKeyPrefix+adminKey, userID, 0).Err(); err != nil {
		return errors.Wrap(err, "redis.Set admin key failed")
	}
	return nil
}

func (c *RedisKeyCache) DeleteAdminKey(ctx context.Context, adminKey string) error {
	if err := c.client.Del(ctx, c.adminKeyPrefix+adminKey).Err(); err != nil {
		return errors.Wrap(err, "redis.Del admin key failed")
	}
	return nil
}

func (c *RedisKeyCache) GetUserIDByAdminKey(ctx context.Context, adminKey string) (string, error) {
	return c.get(ctx, c.adminKeyPrefix+adminKey)
}

func (c *RedisKeyCache) GetLimit(ctx context.Context, name string) (uint32, bool, error) {
	val, err := c.get(ctx, c.limitPrefix+name)
	if err == ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "unable to parse limit %s value %q", name, val)
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, false, errors.Errorf("invalid limit %s value %q", name, val)
	}
	return uint32(n), true, nil
}

func (c *RedisKeyCache) SetLimit(ctx context.Context, name string, value uint32) error {
	if err := c.client.Set(ctx, c.limitPrefix+name, strconv.FormatUint(uint64(value), 10), 0).Err(); err != nil {
		return errors.Wrap(err, "redis.Set limit failed")
	}
	return nil
}

func (c *RedisKeyCache) get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redis.Get failed")
	}
	return val, nil
}

func (c *RedisKeyCache) Close() error {
	return c.client.Close()
}
