package deploy

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/artifact"
	"github.com/hatlonely/workerplane/engine"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/indexer"
	"github.com/hatlonely/workerplane/metastore"
)

// Update 在 PreviousVersion 的基础上发布新版本
// 任何失败都回滚事务；引擎安装成功后提交失败不会卸载新版本
func (o *Orchestrator) Update(ctx context.Context, req *Request) (*Response, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}
	if req.WorkerID == nil {
		return nil, errs.Validation(errs.CodeInvalidRequest, "workerId is required when updating a worker")
	}

	var resp *Response
	err := o.observe(ctx, "update", workerAttrs(req), func(ctx context.Context) error {
		account, err := o.resolveAccount(ctx, req.AdminKey)
		if err != nil {
			return err
		}

		logID := o.logIDs.GenerateString()
		tx, err := o.store.Begin(ctx)
		if err != nil {
			return classify(errors.WithMessage(err, "begin transaction failed"), errs.CodeUnknownWorkerUpdateFailure)
		}

		resp, err = o.update(ctx, tx, logID, req, account)
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				o.logger.ErrorContext(ctx, "rollback worker update failed", "logId", logID, "error", rerr.Error())
			}
			return classify(err, errs.CodeUnknownWorkerUpdateFailure)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) update(ctx context.Context, tx MetaTx, logID string, req *Request, account *metastore.Account) (*Response, error) {
	prevVersion := *req.PreviousVersion
	worker, err := tx.FindWorkerVersion(account.ID, *req.WorkerID, prevVersion)
	if errors.Is(err, metastore.ErrRecordNotFound) {
		return nil, errs.Conflict(errs.CodeWorkerNotFoundPullLatest,
			"worker %d version %d not found, pull the latest version and try again", *req.WorkerID, prevVersion)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "find worker failed")
	}

	mappings, err := indexer.ParseClassMappings(req.ClassMappings)
	if err != nil {
		return nil, err
	}

	// 客户端的计数器可能落后，以已保存的索引为下限，保证 classId 不会被重新分配
	lastClassID := req.LastClassID
	stored, err := o.store.GetArtifacts(ctx, worker.ID)
	if err != nil && !errors.Is(err, metastore.ErrRecordNotFound) {
		return nil, errors.WithMessage(err, "load stored artifacts failed")
	}
	if stored != nil {
		prevIndex, err := artifact.DecodeIndex(stored.Index)
		if err != nil {
			return nil, errors.WithMessage(err, "decode stored index failed")
		}
		lastClassID = max(lastClassID, prevIndex.MaxClassID())
	}

	worker.Name = req.WorkerName
	if err := tx.BumpVersion(worker, prevVersion); err != nil {
		switch {
		case errors.Is(err, metastore.ErrVersionConflict):
			return nil, errs.Conflict(errs.CodeWorkerNotFoundPullLatest,
				"worker %d was updated concurrently, pull the latest version and try again", worker.ID)
		case errors.Is(err, metastore.ErrDuplicateWorkerName):
			return nil, errs.Conflict(errs.CodeDuplicateWorkerName, "worker %q already exists", req.WorkerName)
		}
		return nil, errors.WithMessage(err, "bump worker version failed")
	}

	res, index, code, err := o.build(&indexer.Input{
		WorkerID:      worker.ID,
		WorkerVersion: worker.Version,
		WorkerName:    worker.Name,
		Language:      req.Language,
		Files:         req.Files,
		ClassMappings: mappings,
		LastClassID:   lastClassID,
	})
	if err != nil {
		return nil, err
	}
	if len(res.RetiredClasses) > 0 {
		o.logger.InfoContext(ctx, "classes retired", "logId", logID, "workerId", worker.ID, "classes", res.RetiredClasses)
	}

	if err := tx.SaveArtifacts(worker.ID, &metastore.Artifacts{Index: index, TypeDefinitions: req.TypeDefinitions}); err != nil {
		return nil, errors.WithMessage(err, "save artifacts failed")
	}

	if err := o.engine.Setup(ctx, &engine.SetupRequest{
		LogID:                 logID,
		WorkerID:              worker.ID,
		WorkerVersion:         worker.Version,
		PreviousWorkerVersion: &prevVersion,
		WorkerIndex:           index,
		Code:                  code,
	}); err != nil {
		return nil, engineError(err)
	}

	if err := tx.Commit(); err != nil {
		o.logger.ErrorContext(ctx, "commit worker update failed after engine setup",
			"logId", logID, "workerId", worker.ID, "version", worker.Version, "error", err.Error())
		return nil, errors.WithMessage(err, "commit failed")
	}

	return &Response{
		WorkerID:      worker.ID,
		WorkerVersion: worker.Version,
		ClassMappings: indexer.CreateClassMappings(res.Index),
		LastClassID:   max(lastClassID, res.Index.MaxClassID()),
	}, nil
}
