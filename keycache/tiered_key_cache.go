package keycache

import (
	"context"
	"strconv"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/ref"
)

type TieredKeyCacheOptions struct {
	// 本地缓存大小，单位字节，freecache 最小 512KB
	Size int `cfg:"size" def:"4194304"`
	// 本地缓存过期时间
	TTL time.Duration `cfg:"ttl" def:"30s"`
	// 下层共享缓存
	Backend *ref.TypeOptions `cfg:"backend" validate:"required"`
}

// TieredKeyCache 本地 freecache 缓存反查结果，写操作直接落到下层并使本地缓存失效
// 失效在下层写完之后进行，写入期间并发读回填的旧值也会被清掉
// 限额不经过本地缓存，由配额模块自行控制刷新
type TieredKeyCache struct {
	local   *freecache.Cache
	ttl     int
	backend KeyCache
}

func NewTieredKeyCacheWithOptions(options *TieredKeyCacheOptions) (*TieredKeyCache, error) {
	if options == nil || options.Backend == nil {
		return nil, errors.New("backend is required")
	}
	backend, err := NewKeyCacheWithOptions(options.Backend)
	if err != nil {
		return nil, errors.WithMessage(err, "create backend failed")
	}
	return NewTieredKeyCache(backend, options.Size, options.TTL), nil
}

func NewTieredKeyCache(backend KeyCache, size int, ttl time.Duration) *TieredKeyCache {
	return &TieredKeyCache{
		local:   freecache.NewCache(size),
		ttl:     int(ttl.Seconds()),
		backend: backend,
	}
}

func userKeyKey(userKey string) []byte {
	return []byte("uk:" + userKey)
}

func adminKeyKey(adminKey string) []byte {
	return []byte("ak:" + adminKey)
}

func (c *TieredKeyCache) SetUserKey(ctx context.Context, userKey string, workerID uint64) error {
	err := c.backend.SetUserKey(ctx, userKey, workerID)
	c.local.Del(userKeyKey(userKey))
	return err
}

func (c *TieredKeyCache) DeleteUserKey(ctx context.Context, userKey string) error {
	err := c.backend.DeleteUserKey(ctx, userKey)
	c.local.Del(userKeyKey(userKey))
	return err
}

func (c *TieredKeyCache) GetWorkerIDByUserKey(ctx context.Context, userKey string) (uint64, error) {
	key := userKeyKey(userKey)
	if buf, err := c.local.Get(key); err == nil {
		if workerID, err := strconv.ParseUint(string(buf), 10, 64); err == nil {
			return workerID, nil
		}
	}
	workerID, err := c.backend.GetWorkerIDByUserKey(ctx, userKey)
	if err != nil {
		return 0, err
	}
	_ = c.local.Set(key, []byte(strconv.FormatUint(workerID, 10)), c.ttl)
	return workerID, nil
}

func (c *TieredKeyCache) SetAdminKey(ctx context.Context, adminKey string, userID string) error {
	err := c.backend.SetAdminKey(ctx, adminKey, userID)
	c.local.Del(adminKeyKey(adminKey))
	return err
}

func (c *TieredKeyCache) DeleteAdminKey(ctx context.Context, adminKey string) error {
	err := c.backend.DeleteAdminKey(ctx, adminKey)
	c.local.Del(adminKeyKey(adminKey))
	return err
}

func (c *TieredKeyCache) GetUserIDByAdminKey(ctx context.Context, adminKey string) (string, error) {
	key := adminKeyKey(adminKey)
	if buf, err := c.local.Get(key); err == nil {
		return string(buf), nil
	}
	userID, err := c.backend.GetUserIDByAdminKey(ctx, adminKey)
	if err != nil {
		return "", err
	}
	_ = c.local.Set(key, []byte(userID), c.ttl)
	return userID, nil
}

func (c *TieredKeyCache) GetLimit(ctx context.Context, name string) (uint32, bool, error) {
	return c.backend.GetLimit(ctx, name)
}

func (c *TieredKeyCache) SetLimit(ctx context.Context, name string, value uint32) error {
	return c.backend.SetLimit(ctx, name, value)
}

func (c *TieredKeyCache) Close() error {
	c.local.Clear()
	return c.backend.Close()
}
