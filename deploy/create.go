package deploy

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/engine"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/indexer"
	"github.com/hatlonely/workerplane/metastore"
)

type createStage int

const (
	stageStarted createStage = iota
	stageInserted
	stageIndexed
	stageArtifactsSaved
	stageEngineSetup
	stageUserKeyCached
	stageCommitted
)

func (s createStage) String() string {
	switch s {
	case stageStarted:
		return "started"
	case stageInserted:
		return "inserted"
	case stageIndexed:
		return "indexed"
	case stageArtifactsSaved:
		return "artifactsSaved"
	case stageEngineSetup:
		return "engineSetup"
	case stageUserKeyCached:
		return "userKeyCached"
	case stageCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// createSaga 记录新建流程已经产生的副作用，失败时只补偿已发生的步骤
type createSaga struct {
	o      *Orchestrator
	logID  string
	tx     MetaTx
	worker *metastore.Worker

	stage          createStage
	hasSetupWorker bool
	hasSetUserKey  bool
	completed      bool
}

// Create 新建 worker
// 插入元数据（未提交） -> 生成索引 -> 保存产物 -> 引擎安装 -> 写入 userKey -> 提交
func (o *Orchestrator) Create(ctx context.Context, req *Request) (*Response, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}
	if req.WorkerID != nil {
		return nil, errs.Validation(errs.CodeInvalidRequest, "workerId must be empty when creating a worker")
	}

	var resp *Response
	err := o.observe(ctx, "create", workerAttrs(req), func(ctx context.Context) error {
		account, err := o.resolveAccount(ctx, req.AdminKey)
		if err != nil {
			return err
		}
		if err := o.checkWorkerQuota(ctx, account); err != nil {
			return err
		}

		saga := &createSaga{o: o, logID: o.logIDs.GenerateString()}
		resp, err = saga.run(ctx, req, account)
		if err != nil {
			saga.compensate(ctx, err)
			if _, ok := errs.As(err); !ok {
				o.logger.CriticalContext(ctx, "unknown worker creation failure",
					"logId", saga.logID, "worker", req.WorkerName, "stage", saga.stage.String(), "error", err.Error())
			}
			return classify(err, errs.CodeUnknownWorkerCreationFailure)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *createSaga) run(ctx context.Context, req *Request, account *metastore.Account) (*Response, error) {
	o := s.o

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "begin transaction failed")
	}
	s.tx = tx

	s.worker = &metastore.Worker{
		AccountID: account.ID,
		Name:      req.WorkerName,
		Version:   1,
		UserKey:   o.keyGen.Generate(),
	}
	if err := tx.CreateWorker(s.worker); err != nil {
		if errors.Is(err, metastore.ErrDuplicateWorkerName) {
			return nil, errs.Conflict(errs.CodeDuplicateWorkerName, "worker %q already exists", req.WorkerName)
		}
		return nil, errors.WithMessage(err, "create worker failed")
	}
	s.stage = stageInserted

	// 新 worker 没有历史映射，所有类都重新分配
	res, index, code, err := o.build(&indexer.Input{
		WorkerID:      s.worker.ID,
		WorkerVersion: s.worker.Version,
		WorkerName:    s.worker.Name,
		Language:      req.Language,
		Files:         req.Files,
	})
	if err != nil {
		return nil, err
	}
	s.stage = stageIndexed

	if err := tx.SaveArtifacts(s.worker.ID, &metastore.Artifacts{Index: index, TypeDefinitions: req.TypeDefinitions}); err != nil {
		return nil, errors.WithMessage(err, "save artifacts failed")
	}
	s.stage = stageArtifactsSaved

	if err := o.engine.Setup(ctx, &engine.SetupRequest{
		LogID:         s.logID,
		WorkerID:      s.worker.ID,
		WorkerVersion: s.worker.Version,
		WorkerIndex:   index,
		Code:          code,
	}); err != nil {
		return nil, engineError(err)
	}
	s.hasSetupWorker = true
	s.stage = stageEngineSetup

	if err := o.keys.SetUserKey(ctx, s.worker.UserKey, s.worker.ID); err != nil {
		return nil, errs.Platform(errs.CodeKeyCacheFault, "cache user key failed").WithCause(err)
	}
	s.hasSetUserKey = true
	s.stage = stageUserKeyCached

	if err := tx.Commit(); err != nil {
		return nil, errors.WithMessage(err, "commit failed")
	}
	s.completed = true
	s.stage = stageCommitted

	return &Response{
		WorkerID:      s.worker.ID,
		WorkerVersion: s.worker.Version,
		ClassMappings: indexer.CreateClassMappings(res.Index),
		LastClassID:   res.Index.MaxClassID(),
	}, nil
}

// compensate 按相反顺序撤销：删除 userKey -> 引擎卸载 -> 回滚事务
// 补偿不受调用方取消影响，失败只记录日志，不覆盖原始错误
func (s *createSaga) compensate(ctx context.Context, cause error) {
	if s.completed {
		return
	}
	ctx = context.WithoutCancel(ctx)
	o := s.o
	var workerID uint64
	if s.worker != nil {
		workerID = s.worker.ID
	}
	l := o.logger.With("logId", s.logID, "workerId", workerID, "stage", s.stage.String(), "cause", cause.Error())

	if s.hasSetUserKey {
		err := o.keys.DeleteUserKey(ctx, s.worker.UserKey)
		o.metrics.compensation("uncache", err)
		if err != nil {
			l.CriticalContext(ctx, "failed to remove user key of a worker that was not created, manual cleanup required", "error", err.Error())
		}
	}

	if s.hasSetupWorker {
		err := o.engine.Teardown(ctx, &engine.TeardownRequest{LogID: s.logID, WorkerID: s.worker.ID, WorkerVersion: s.worker.Version})
		o.metrics.compensation("teardown", err)
		if err != nil {
			l.CriticalContext(ctx, "failed to tear down a worker that was not created, manual cleanup required", "error", err.Error())
		}
	}

	if s.tx != nil {
		err := s.tx.Rollback()
		o.metrics.compensation("rollback", err)
		if err != nil {
			l.CriticalContext(ctx, "failed to roll back worker creation", "error", err.Error())
		}
	}
}
