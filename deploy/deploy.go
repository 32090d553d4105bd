package deploy

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/workerplane/artifact"
	"github.com/hatlonely/workerplane/engine"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/indexer"
	"github.com/hatlonely/workerplane/keycache"
	"github.com/hatlonely/workerplane/log"
	"github.com/hatlonely/workerplane/log/logger"
	"github.com/hatlonely/workerplane/metastore"
	"github.com/hatlonely/workerplane/quota"
	"github.com/hatlonely/workerplane/uid/intgen"
	"github.com/hatlonely/workerplane/uid/strgen"
)

type Options struct {
	// 内置账号不受配额限制
	BuiltInUserIDs         []string `cfg:"builtInUserIds"`
	MaxTypeDefinitionBytes int      `cfg:"maxTypeDefinitionBytes" def:"4194304"`

	Indexer indexer.Options         `cfg:"indexer"`
	Key     strgen.KeyOptions       `cfg:"key"`
	LogID   intgen.SnowflakeOptions `cfg:"logId"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableTracing bool `cfg:"enableTracing"`
	// 指标名前缀
	Name string `cfg:"name" def:"workerplane_deploy"`
}

// MetaStore 元数据存储，事务之外的读写
type MetaStore interface {
	Begin(ctx context.Context) (MetaTx, error)
	FindAccountByUserID(ctx context.Context, userID string) (*metastore.Account, error)
	CreateAccount(ctx context.Context, account *metastore.Account) error
	CountAccounts(ctx context.Context) (int64, error)
	CountWorkersByAccount(ctx context.Context, accountID uint64) (int64, error)
	CountWorkers(ctx context.Context) (int64, error)
	FindWorkerByName(ctx context.Context, accountID uint64, name string) (*metastore.Worker, error)
	ListWorkers(ctx context.Context, accountID uint64) ([]metastore.Worker, error)
	GetArtifacts(ctx context.Context, workerID uint64) (*metastore.Artifacts, error)
	DeleteWorker(ctx context.Context, workerID uint64) error
}

// MetaTx 部署流程中未提交的修改
type MetaTx interface {
	CreateWorker(worker *metastore.Worker) error
	FindWorkerVersion(accountID, workerID, version uint64) (*metastore.Worker, error)
	SaveArtifacts(workerID uint64, artifacts *metastore.Artifacts) error
	BumpVersion(worker *metastore.Worker, prevVersion uint64) error
	Commit() error
	Rollback() error
}

type metaStore struct {
	*metastore.Store
}

// NewMetaStore 把 metastore.Store 适配为 MetaStore
func NewMetaStore(store *metastore.Store) MetaStore {
	return &metaStore{Store: store}
}

func (s *metaStore) Begin(ctx context.Context) (MetaTx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// QuotaGuard 平台限额
type QuotaGuard interface {
	GetLimits(ctx context.Context) quota.Limits
}

var _ QuotaGuard = (*quota.Guard)(nil)

// Dependencies 编排器依赖的外部组件
type Dependencies struct {
	Store      MetaStore
	Keys       keycache.KeyCache
	Quota      QuotaGuard
	Engine     engine.Engine
	Logger     logger.Logger
	Registerer prometheus.Registerer
}

// Orchestrator 部署编排器，负责 worker 的创建、更新和管理
// 元数据事务、计算引擎和键缓存之间没有分布式事务，失败时按相反顺序补偿
type Orchestrator struct {
	options *Options
	store   MetaStore
	keys    keycache.KeyCache
	quota   QuotaGuard
	engine  engine.Engine
	logger  logger.Logger
	metrics *Metrics
	tracer  trace.Tracer

	indexer *indexer.Indexer
	keyGen  strgen.StrGenerator
	logIDs  *intgen.SnowflakeGenerator
	builtIn map[string]bool
}

func NewOrchestratorWithOptions(options *Options, deps *Dependencies) (*Orchestrator, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if deps == nil || deps.Store == nil || deps.Keys == nil || deps.Quota == nil || deps.Engine == nil {
		return nil, errors.New("store, keys, quota and engine are required")
	}

	o := &Orchestrator{
		options: options,
		store:   deps.Store,
		keys:    deps.Keys,
		quota:   deps.Quota,
		engine:  deps.Engine,
		logger:  deps.Logger,
		tracer:  newTracer(options.EnableTracing),
		indexer: indexer.NewIndexerWithOptions(&options.Indexer),
		keyGen:  strgen.NewKeyGeneratorWithOptions(&options.Key),
		logIDs:  intgen.NewSnowflakeGeneratorWithOptions(&options.LogID),
		builtIn: map[string]bool{},
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	o.logger = o.logger.WithGroup("deploy")

	if options.EnableMetrics {
		name := options.Name
		if name == "" {
			name = "workerplane_deploy"
		}
		metrics, err := NewMetrics(name, deps.Registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "NewMetrics failed")
		}
		o.metrics = metrics
	}

	for _, id := range options.BuiltInUserIDs {
		o.builtIn[id] = true
	}
	return o, nil
}

// Deploy 没有 WorkerID 时新建，否则在 PreviousVersion 的基础上更新
func (o *Orchestrator) Deploy(ctx context.Context, req *Request) (*Response, error) {
	if req != nil && req.WorkerID != nil {
		return o.Update(ctx, req)
	}
	return o.Create(ctx, req)
}

// resolveAccount adminKey -> userId -> 未删除的账号
func (o *Orchestrator) resolveAccount(ctx context.Context, adminKey string) (*metastore.Account, error) {
	userID, err := o.keys.GetUserIDByAdminKey(ctx, adminKey)
	if errors.Is(err, keycache.ErrKeyNotFound) {
		return nil, errs.NotFound(errs.CodeUserNotFound, "no account for the admin key")
	}
	if err != nil {
		return nil, errs.Platform(errs.CodeKeyCacheFault, "resolve admin key failed").WithCause(err)
	}

	account, err := o.store.FindAccountByUserID(ctx, userID)
	if errors.Is(err, metastore.ErrRecordNotFound) {
		return nil, errs.NotFound(errs.CodeUserNotFound, "account %s not found", userID)
	}
	if err != nil {
		return nil, errs.Platform(errs.CodeMetaStoreFault, "find account failed").WithCause(err)
	}
	return account, nil
}

// checkWorkerQuota 先检查单用户上限，再检查平台总量
func (o *Orchestrator) checkWorkerQuota(ctx context.Context, account *metastore.Account) error {
	if o.builtIn[account.UserID] {
		return nil
	}
	limits := o.quota.GetLimits(ctx)

	n, err := o.store.CountWorkersByAccount(ctx, account.ID)
	if err != nil {
		return errs.Platform(errs.CodeMetaStoreFault, "count workers failed").WithCause(err)
	}
	if n >= int64(limits.WorkersPerUser) {
		return errs.Quota(errs.CodeUserWorkerLimitReached, "account has reached the limit of %d workers", limits.WorkersPerUser)
	}

	total, err := o.store.CountWorkers(ctx)
	if err != nil {
		return errs.Platform(errs.CodeMetaStoreFault, "count workers failed").WithCause(err)
	}
	if total >= int64(limits.MaxWorkers) {
		return errs.Quota(errs.CodeMaxWorkerLimitReached, "platform has reached the limit of %d workers", limits.MaxWorkers)
	}
	return nil
}

// build 生成索引并应用预编译指令，返回序列化后的索引和引擎需要的代码
func (o *Orchestrator) build(in *indexer.Input) (*indexer.Result, []byte, []string, error) {
	res, err := o.indexer.Index(in)
	if err != nil {
		return nil, nil, nil, err
	}
	buf, err := artifact.EncodeIndex(res.Index)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "encode worker index failed")
	}
	files := indexer.ApplyAll(in.Files, res.Directives)
	code := make([]string, 0, len(files))
	for _, f := range files {
		code = append(code, f.Code)
	}
	return res, buf, code, nil
}

// engineError 用户代码加载失败属于请求错误，其余引擎错误属于平台故障
func engineError(err error) error {
	var scriptErr *engine.ScriptError
	if errors.As(err, &scriptErr) {
		return errs.Validation(errs.CodeWorkerScriptError, "%s", scriptErr.Message).WithCause(err)
	}
	return errs.Platform(errs.CodeEngineFault, "engine setup failed").WithCause(err)
}

// classify 已分类的错误原样返回，其余归为 code 对应的平台故障
func classify(err error, code string) error {
	if _, ok := errs.As(err); ok {
		return err
	}
	return errs.Platform(code, "unexpected failure").WithCause(err)
}

func workerAttrs(req *Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("worker.name", req.WorkerName)}
	if req.WorkerID != nil {
		attrs = append(attrs, attribute.Int64("worker.id", int64(*req.WorkerID)))
	}
	if req.PreviousVersion != nil {
		attrs = append(attrs, attribute.Int64("worker.previous_version", int64(*req.PreviousVersion)))
	}
	return attrs
}
