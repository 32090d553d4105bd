package deploy

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hatlonely/workerplane/engine"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/metastore"
)

// ConnectInfo 客户端连接 worker 需要的信息
type ConnectInfo struct {
	WorkerID        uint64
	WorkerVersion   uint64
	UserKey         string
	Index           []byte
	TypeDefinitions []byte
}

// AccountInfo 新建账号的凭据
type AccountInfo struct {
	UserID   string
	AdminKey string
}

// DeleteWorker 卸载当前版本 -> 删除元数据 -> 删除 userKey
func (o *Orchestrator) DeleteWorker(ctx context.Context, adminKey string, name string) error {
	return o.observe(ctx, "delete", []attribute.KeyValue{attribute.String("worker.name", name)}, func(ctx context.Context) error {
		account, err := o.resolveAccount(ctx, adminKey)
		if err != nil {
			return err
		}
		worker, err := o.findWorker(ctx, account, name)
		if err != nil {
			return err
		}

		logID := o.logIDs.GenerateString()
		if err := o.engine.Teardown(ctx, &engine.TeardownRequest{LogID: logID, WorkerID: worker.ID, WorkerVersion: worker.Version}); err != nil {
			return errs.Platform(errs.CodeEngineFault, "engine teardown failed").WithCause(err)
		}
		if err := o.store.DeleteWorker(ctx, worker.ID); err != nil {
			if errors.Is(err, metastore.ErrRecordNotFound) {
				return errs.NotFound(errs.CodeWorkerNotFoundByName, "worker %q not found", name)
			}
			return errs.Platform(errs.CodeMetaStoreFault, "delete worker failed").WithCause(err)
		}
		if err := o.keys.DeleteUserKey(context.WithoutCancel(ctx), worker.UserKey); err != nil {
			o.logger.CriticalContext(ctx, "failed to remove user key of a deleted worker, manual cleanup required",
				"logId", logID, "workerId", worker.ID, "error", err.Error())
			return errs.Platform(errs.CodeKeyCacheFault, "delete user key failed").WithCause(err)
		}
		return nil
	})
}

// ListWorkers 返回账号下所有 worker 的名称
func (o *Orchestrator) ListWorkers(ctx context.Context, adminKey string) ([]string, error) {
	var names []string
	err := o.observe(ctx, "list", nil, func(ctx context.Context) error {
		account, err := o.resolveAccount(ctx, adminKey)
		if err != nil {
			return err
		}
		workers, err := o.store.ListWorkers(ctx, account.ID)
		if err != nil {
			return errs.Platform(errs.CodeMetaStoreFault, "list workers failed").WithCause(err)
		}
		names = make([]string, 0, len(workers))
		for _, w := range workers {
			names = append(names, w.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (o *Orchestrator) GetConnectInfo(ctx context.Context, adminKey string, name string) (*ConnectInfo, error) {
	var info *ConnectInfo
	err := o.observe(ctx, "connectInfo", []attribute.KeyValue{attribute.String("worker.name", name)}, func(ctx context.Context) error {
		account, err := o.resolveAccount(ctx, adminKey)
		if err != nil {
			return err
		}
		worker, err := o.findWorker(ctx, account, name)
		if err != nil {
			return err
		}
		artifacts, err := o.store.GetArtifacts(ctx, worker.ID)
		if err != nil {
			return errs.Platform(errs.CodeMetaStoreFault, "load artifacts failed").WithCause(err)
		}
		info = &ConnectInfo{
			WorkerID:        worker.ID,
			WorkerVersion:   worker.Version,
			UserKey:         worker.UserKey,
			Index:           artifacts.Index,
			TypeDefinitions: artifacts.TypeDefinitions,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// CreateAccount 写入 adminKey 后再创建账号，创建失败时删除 adminKey
func (o *Orchestrator) CreateAccount(ctx context.Context, userID string, email string) (*AccountInfo, error) {
	var info *AccountInfo
	err := o.observe(ctx, "createAccount", []attribute.KeyValue{attribute.String("user.id", userID)}, func(ctx context.Context) error {
		if userID == "" {
			return errs.Validation(errs.CodeInvalidRequest, "user id is required")
		}
		if !o.builtIn[userID] {
			limits := o.quota.GetLimits(ctx)
			n, err := o.store.CountAccounts(ctx)
			if err != nil {
				return errs.Platform(errs.CodeMetaStoreFault, "count accounts failed").WithCause(err)
			}
			if n >= int64(limits.MaxAccounts) {
				return errs.Quota(errs.CodeMaxAccountLimitReached, "platform has reached the limit of %d accounts", limits.MaxAccounts)
			}
		}

		adminKey := o.keyGen.Generate()
		if err := o.keys.SetAdminKey(ctx, adminKey, userID); err != nil {
			return errs.Platform(errs.CodeKeyCacheFault, "cache admin key failed").WithCause(err)
		}

		err := o.store.CreateAccount(ctx, &metastore.Account{UserID: userID, Email: email, AdminKey: adminKey})
		if err == nil {
			info = &AccountInfo{UserID: userID, AdminKey: adminKey}
			return nil
		}

		derr := o.keys.DeleteAdminKey(context.WithoutCancel(ctx), adminKey)
		o.metrics.compensation("uncacheAdminKey", derr)
		if derr != nil {
			o.logger.CriticalContext(ctx, "failed to remove admin key of an account that was not created, manual cleanup required",
				"userId", userID, "error", derr.Error())
		}
		if errors.Is(err, metastore.ErrDuplicateKey) {
			return errs.Conflict(errs.CodeDuplicateAccount, "account %s already exists", userID)
		}
		return errs.Platform(errs.CodeMetaStoreFault, "create account failed").WithCause(err)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (o *Orchestrator) findWorker(ctx context.Context, account *metastore.Account, name string) (*metastore.Worker, error) {
	worker, err := o.store.FindWorkerByName(ctx, account.ID, name)
	if errors.Is(err, metastore.ErrRecordNotFound) {
		return nil, errs.NotFound(errs.CodeWorkerNotFoundByName, "worker %q not found", name)
	}
	if err != nil {
		return nil, errs.Platform(errs.CodeMetaStoreFault, "find worker failed").WithCause(err)
	}
	return worker, nil
}
