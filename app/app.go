package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatlonely/workerplane/cfg"
	"github.com/hatlonely/workerplane/client"
	"github.com/hatlonely/workerplane/deploy"
	"github.com/hatlonely/workerplane/engine"
	"github.com/hatlonely/workerplane/keycache"
	"github.com/hatlonely/workerplane/log"
	"github.com/hatlonely/workerplane/log/logger"
	"github.com/hatlonely/workerplane/metastore"
	"github.com/hatlonely/workerplane/quota"
	"github.com/hatlonely/workerplane/ref"
)

type Options struct {
	MetaStore metastore.Options `cfg:"metaStore"`
	KeyCache  ref.TypeOptions   `cfg:"keyCache"`
	Engine    ref.TypeOptions   `cfg:"engine"`
	Quota     quota.Options     `cfg:"quota"`
	Deploy    deploy.Options    `cfg:"deploy"`
	Client    client.Options    `cfg:"client"`
	Logger    ref.TypeOptions   `cfg:"logger"`
}

// App 组装元数据存储、键缓存、限额、计算引擎和部署编排器
type App struct {
	Orchestrator *deploy.Orchestrator
	Deployer     *client.Deployer
	Quota        *quota.Guard
	Keys         keycache.KeyCache
	Logger       logger.Logger
	// 部署指标注册在独立的 registry 上，由宿主进程决定如何暴露
	Registry *prometheus.Registry

	store *metastore.Store
}

// NewAppWithConfig 从配置文件根节点加载 Options
func NewAppWithConfig(ctx context.Context, c *cfg.Config) (*App, error) {
	var options Options
	if err := c.ConvertTo(&options); err != nil {
		return nil, errors.WithMessage(err, "load app options failed")
	}
	return NewAppWithOptions(ctx, &options)
}

func NewAppWithOptions(ctx context.Context, options *Options) (_ *App, err error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	l, err := log.NewLoggerWithOptions(&options.Logger)
	if err != nil {
		return nil, err
	}

	store, err := metastore.NewStoreWithOptions(&options.MetaStore)
	if err != nil {
		return nil, errors.WithMessage(err, "create meta store failed")
	}
	app := &App{store: store, Logger: l, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if app.Keys, err = keycache.NewKeyCacheWithOptions(&options.KeyCache); err != nil {
		return nil, errors.WithMessage(err, "create key cache failed")
	}

	if app.Quota, err = quota.NewGuardWithOptions(&options.Quota, app.Keys, l); err != nil {
		return nil, errors.WithMessage(err, "create quota guard failed")
	}
	if err = app.Quota.Init(ctx); err != nil {
		return nil, errors.WithMessage(err, "load platform limits failed")
	}

	eng, err := engine.NewEngineWithOptions(&options.Engine)
	if err != nil {
		return nil, errors.WithMessage(err, "create engine failed")
	}

	app.Orchestrator, err = deploy.NewOrchestratorWithOptions(&options.Deploy, &deploy.Dependencies{
		Store:      deploy.NewMetaStore(store),
		Keys:       app.Keys,
		Quota:      app.Quota,
		Engine:     eng,
		Logger:     l,
		Registerer: app.Registry,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "create orchestrator failed")
	}

	if app.Deployer, err = client.NewDeployerWithOptions(&options.Client, app.Orchestrator, l); err != nil {
		return nil, errors.WithMessage(err, "create deployer failed")
	}
	return app, nil
}

func (a *App) Close() error {
	var err error
	if a.Keys != nil {
		if e := a.Keys.Close(); e != nil {
			err = errors.Wrap(e, "close key cache failed")
		}
	}
	if a.store != nil {
		if e := a.store.Close(); e != nil && err == nil {
			err = errors.Wrap(e, "close meta store failed")
		}
	}
	return err
}
