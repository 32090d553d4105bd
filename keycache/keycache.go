package keycache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/ref"
)

var ErrKeyNotFound = errors.New("key not found")

func init() {
	ref.MustRegisterT[RedisKeyCache](NewRedisKeyCacheWithOptions)
	ref.MustRegisterT[TieredKeyCache](NewTieredKeyCacheWithOptions)
}

// KeyCache 计算引擎鉴权使用的共享键值缓存
// uk:{userKey} -> workerId，ak:{adminKey} -> userId，l:{name} -> 平台限额
type KeyCache interface {
	SetUserKey(ctx context.Context, userKey string, workerID uint64) error
	// DeleteUserKey 键不存在时也返回成功
	DeleteUserKey(ctx context.Context, userKey string) error
	// GetWorkerIDByUserKey 不存在时返回 ErrKeyNotFound
	GetWorkerIDByUserKey(ctx context.Context, userKey string) (uint64, error)

	SetAdminKey(ctx context.Context, adminKey string, userID string) error
	DeleteAdminKey(ctx context.Context, adminKey string) error
	// GetUserIDByAdminKey 不存在时返回 ErrKeyNotFound
	GetUserIDByAdminKey(ctx context.Context, adminKey string) (string, error)

	// GetLimit 返回限额以及是否被覆盖，未设置时 ok 为 false
	GetLimit(ctx context.Context, name string) (value uint32, ok bool, err error)
	SetLimit(ctx context.Context, name string, value uint32) error

	Close() error
}

func NewKeyCacheWithOptions(options *ref.TypeOptions) (KeyCache, error) {
	c, err := ref.NewT[KeyCache](options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewT failed")
	}
	return c, nil
}
