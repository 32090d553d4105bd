package client

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/artifact"
	"github.com/hatlonely/workerplane/change"
	"github.com/hatlonely/workerplane/deploy"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/identity"
	"github.com/hatlonely/workerplane/log"
	"github.com/hatlonely/workerplane/log/logger"
	"github.com/hatlonely/workerplane/uid/strgen"
)

// ControlPlane 服务端部署接口
type ControlPlane interface {
	Deploy(ctx context.Context, req *deploy.Request) (*deploy.Response, error)
}

type Options struct {
	// 编译输出目录，相对 worker 目录
	BuildDir string `cfg:"buildDir" def:"build"`
	// 类型声明目录，相对 worker 目录
	DeclDir    string   `cfg:"declDir" def:"decl"`
	Extensions []string `cfg:"extensions" def:".js,.mjs"`
}

// Deployer 客户端部署流程：读取代码 -> 计算 checksum -> 解析类映射 -> 判断是否需要部署
// -> 打包类型声明 -> 调用服务端 -> 合并身份信息 -> 写回 worker.json
type Deployer struct {
	options *Options
	cp      ControlPlane
	tags    strgen.StrGenerator
	logger  logger.Logger
}

func NewDeployerWithOptions(options *Options, cp ControlPlane, l logger.Logger) (*Deployer, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if cp == nil {
		return nil, errors.New("control plane cannot be nil")
	}
	if l == nil {
		l = log.Default()
	}
	return &Deployer{
		options: options,
		cp:      cp,
		tags:    strgen.NewUUIDGeneratorWithOptions(&strgen.UUIDOptions{Version: "v4"}),
		logger:  l,
	}, nil
}

type Result struct {
	// 代码和类集合都没有变化，没有调用服务端
	Skipped       bool
	WorkerID      uint64
	WorkerVersion uint64
	Config        *identity.WorkerConfig
}

func (d *Deployer) dir(workerDir, sub string) string {
	if filepath.IsAbs(sub) {
		return sub
	}
	return filepath.Join(workerDir, sub)
}

func (d *Deployer) Deploy(ctx context.Context, workerDir string) (*Result, error) {
	cfg, err := identity.LoadWorkerConfig(workerDir)
	if err != nil {
		return nil, err
	}
	id := cfg.Identity

	files, err := change.ReadWorkerFiles(d.dir(workerDir, d.options.BuildDir), d.options.Extensions...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errs.Validation(errs.CodeInvalidRequest, "no worker files found in %s", d.dir(workerDir, d.options.BuildDir))
	}
	checksum := change.Checksum(cfg.Name, files)

	mappings, err := identity.ResolveClassMappings(cfg.Classes, id)
	if err != nil {
		return nil, err
	}

	if !change.ShouldDeploy(id, checksum, mappings) {
		d.logger.InfoContext(ctx, "worker is up to date", "worker", cfg.Name, "version", *id.WorkerVersion)
		return &Result{Skipped: true, WorkerID: *id.WorkerID, WorkerVersion: *id.WorkerVersion, Config: cfg}, nil
	}

	typeDefs, err := artifact.PackTypeDefinitions(d.dir(workerDir, d.options.DeclDir))
	if err != nil {
		return nil, errs.Validation(errs.CodeMissingTypeDefinitions, "pack type definitions failed").WithCause(err)
	}

	req := &deploy.Request{
		AdminKey:        id.AdminKey,
		WorkerName:      cfg.Name,
		WorkerID:        id.WorkerID,
		PreviousVersion: id.WorkerVersion,
		Files:           files,
		TypeDefinitions: typeDefs,
		ClassMappings:   mappings,
	}
	if id.LastClassID != nil {
		req.LastClassID = *id.LastClassID
	}

	resp, err := d.cp.Deploy(ctx, req)
	if err != nil {
		return nil, err
	}

	classes, identityMappings, lastClassID := identity.Merge(id, resp.ClassMappings, d.tags.Generate)
	lastClassID = max(lastClassID, resp.LastClassID)
	workerID, version := resp.WorkerID, resp.WorkerVersion
	cfg.Classes = classes
	cfg.Identity = &identity.WorkerIdentity{
		AdminKey:              id.AdminKey,
		Checksum:              &checksum,
		WorkerID:              &workerID,
		WorkerVersion:         &version,
		IdentityClassMappings: identityMappings,
		LastClassID:           &lastClassID,
	}
	if err := cfg.Save(workerDir); err != nil {
		// 服务端已经发布，本地身份丢失后下一次部署会被当作新 worker
		d.logger.ErrorContext(ctx, "save worker config failed after deploy",
			"worker", cfg.Name, "workerId", workerID, "version", version, "error", err.Error())
		return nil, errors.WithMessage(err, "save worker config failed")
	}

	d.logger.InfoContext(ctx, "worker deployed", "worker", cfg.Name, "workerId", workerID, "version", version)
	return &Result{WorkerID: workerID, WorkerVersion: version, Config: cfg}, nil
}

// Init 在 workerDir 下创建未部署的 worker.json
func Init(workerDir string, name string, adminKey string) (*identity.WorkerConfig, error) {
	if !identity.ValidWorkerName(name) {
		return nil, errs.Validation(errs.CodeInvalidRequest, "invalid worker name %q", name)
	}
	if _, err := os.Stat(identity.ConfigPath(workerDir)); err == nil {
		return nil, errs.Validation(errs.CodeInvalidRequest, "%s already exists", identity.ConfigPath(workerDir))
	}
	if err := os.MkdirAll(workerDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create %s failed", workerDir)
	}
	cfg := &identity.WorkerConfig{
		Name:     name,
		Classes:  []identity.ClassTag{},
		Identity: &identity.WorkerIdentity{AdminKey: adminKey},
	}
	if err := cfg.Save(workerDir); err != nil {
		return nil, err
	}
	return cfg, nil
}
