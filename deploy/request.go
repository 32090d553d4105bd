package deploy

import (
	"github.com/hatlonely/workerplane/cfg/validator"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/indexer"
)

// Request 一次部署请求，WorkerID 为空时新建 worker
type Request struct {
	AdminKey   string `validate:"required"`
	WorkerName string `validate:"min=3,max=50"`
	// 更新时必须同时提供 WorkerID 和 PreviousVersion
	WorkerID        *uint64
	PreviousVersion *uint64
	Language        indexer.Language `validate:"omitempty,oneof=javascript"`
	Files           []indexer.File   `validate:"min=1,dive"`
	// tar.gz 打包的类型声明文件
	TypeDefinitions []byte
	ClassMappings   []indexer.ClassMapping
	LastClassID     uint16
}

// Response 部署成功后服务端的权威状态
type Response struct {
	WorkerID      uint64
	WorkerVersion uint64
	ClassMappings []indexer.ClassMapping
	// 已分配过的最大 classId，退役类的 ID 也计算在内
	LastClassID uint16
}

func (o *Orchestrator) validate(req *Request) error {
	if req == nil {
		return errs.Validation(errs.CodeInvalidRequest, "request is nil")
	}
	if err := validator.ValidateStruct(req); err != nil {
		return errs.Validation(errs.CodeInvalidRequest, "%s", err.Error())
	}
	for _, f := range req.Files {
		if f.Name == "" {
			return errs.Validation(errs.CodeInvalidRequest, "file name is empty")
		}
	}
	if (req.WorkerID == nil) != (req.PreviousVersion == nil) {
		return errs.Validation(errs.CodeInvalidRequest, "workerId and previousVersion must be provided together")
	}
	if len(req.TypeDefinitions) == 0 {
		return errs.Validation(errs.CodeMissingTypeDefinitions, "type definitions are required")
	}
	if o.options.MaxTypeDefinitionBytes > 0 && len(req.TypeDefinitions) > o.options.MaxTypeDefinitionBytes {
		return errs.Validation(errs.CodeInvalidRequest, "type definitions exceed %d bytes", o.options.MaxTypeDefinitionBytes)
	}
	return nil
}
