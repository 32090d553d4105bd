package quota

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hatlonely/workerplane/log"
	"github.com/hatlonely/workerplane/log/logger"
)

// 键缓存中覆盖默认限额的键名
const (
	LimitMaxAccounts    = "MaxAccounts"
	LimitWorkersPerUser = "WorkersPerUser"
	LimitMaxWorkers     = "MaxWorkers"
)

type Options struct {
	DefaultMaxAccounts    uint32        `cfg:"defaultMaxAccounts" def:"1000"`
	DefaultWorkersPerUser uint32        `cfg:"defaultWorkersPerUser" def:"10"`
	DefaultMaxWorkers     uint32        `cfg:"defaultMaxWorkers" def:"10000"`
	RefreshInterval       time.Duration `cfg:"refreshInterval" def:"1m"`
}

// Limits 平台级限额
type Limits struct {
	MaxAccounts    uint32
	WorkersPerUser uint32
	MaxWorkers     uint32
}

// LimitSource 限额覆盖值的来源，未设置时 ok 为 false
type LimitSource interface {
	GetLimit(ctx context.Context, name string) (value uint32, ok bool, err error)
}

// Guard 惰性刷新的限额缓存
// 同一时刻只有一个调用方刷新，其余调用方直接读取缓存值
type Guard struct {
	options *Options
	source  LimitSource
	logger  logger.Logger
	now     func() time.Time

	sem *semaphore.Weighted

	mu          sync.RWMutex
	limits      Limits
	lastUpdated time.Time
	initialized bool
}

func NewGuardWithOptions(options *Options, source LimitSource, l logger.Logger) (*Guard, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if source == nil {
		return nil, errors.New("limit source cannot be nil")
	}
	if l == nil {
		l = log.Default()
	}
	return &Guard{
		options: options,
		source:  source,
		logger:  l,
		now:     time.Now,
		sem:     semaphore.NewWeighted(1),
	}, nil
}

// Init 必须在读取限额前调用且只能调用一次，首次刷新失败时返回错误
func (g *Guard) Init(ctx context.Context) error {
	g.mu.RLock()
	initialized := g.initialized
	g.mu.RUnlock()
	if initialized {
		return errors.New("quota guard already initialized")
	}

	if !g.sem.TryAcquire(1) {
		return errors.New("quota guard is initializing")
	}
	defer g.sem.Release(1)

	if err := g.refresh(ctx); err != nil {
		return errors.WithMessage(err, "initial limits refresh failed")
	}

	g.mu.Lock()
	g.initialized = true
	g.mu.Unlock()
	return nil
}

// GetLimits 缓存过期时尝试刷新，刷新失败时返回旧值
func (g *Guard) GetLimits(ctx context.Context) Limits {
	g.mu.RLock()
	if !g.initialized {
		g.mu.RUnlock()
		panic("quota guard used before Init")
	}
	stale := g.stale()
	limits := g.limits
	g.mu.RUnlock()

	if !stale || !g.sem.TryAcquire(1) {
		return limits
	}
	defer g.sem.Release(1)

	// 拿到信号量之前可能已经有其他调用方刷新过
	g.mu.RLock()
	stale = g.stale()
	g.mu.RUnlock()
	if stale {
		if err := g.refresh(ctx); err != nil {
			g.logger.WarnContext(ctx, "refresh platform limits failed, using cached values", "error", err.Error())
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limits
}

// stale 调用方需持有读锁
func (g *Guard) stale() bool {
	return g.lastUpdated.IsZero() || g.now().Sub(g.lastUpdated) > g.options.RefreshInterval
}

// refresh 调用方需持有信号量
func (g *Guard) refresh(ctx context.Context) error {
	maxAccounts, maxAccountsOverridden, err := g.fetch(ctx, LimitMaxAccounts, g.options.DefaultMaxAccounts)
	if err != nil {
		return err
	}
	workersPerUser, workersPerUserOverridden, err := g.fetch(ctx, LimitWorkersPerUser, g.options.DefaultWorkersPerUser)
	if err != nil {
		return err
	}
	maxWorkers, maxWorkersOverridden, err := g.fetch(ctx, LimitMaxWorkers, g.options.DefaultMaxWorkers)
	if err != nil {
		return err
	}

	g.mu.Lock()
	prev, first := g.limits, g.lastUpdated.IsZero()
	g.limits = Limits{MaxAccounts: maxAccounts, WorkersPerUser: workersPerUser, MaxWorkers: maxWorkers}
	g.lastUpdated = g.now()
	g.mu.Unlock()

	var changes []string
	if first || prev.MaxAccounts != maxAccounts {
		changes = append(changes, describe(LimitMaxAccounts, maxAccounts, maxAccountsOverridden))
	}
	if first || prev.WorkersPerUser != workersPerUser {
		changes = append(changes, describe(LimitWorkersPerUser, workersPerUser, workersPerUserOverridden))
	}
	if first || prev.MaxWorkers != maxWorkers {
		changes = append(changes, describe(LimitMaxWorkers, maxWorkers, maxWorkersOverridden))
	}
	if len(changes) > 0 {
		g.logger.InfoContext(ctx, "platform limits have been updated: "+strings.Join(changes, ", "))
	}
	return nil
}

func (g *Guard) fetch(ctx context.Context, name string, def uint32) (uint32, bool, error) {
	v, ok, err := g.source.GetLimit(ctx, name)
	if err != nil {
		return 0, false, errors.WithMessagef(err, "get limit %s failed", name)
	}
	if !ok {
		return def, false, nil
	}
	return v, true, nil
}

func describe(name string, value uint32, overridden bool) string {
	if overridden {
		return fmt.Sprintf("%s = %d (overridden)", name, value)
	}
	return fmt.Sprintf("%s = %d (default)", name, value)
}
