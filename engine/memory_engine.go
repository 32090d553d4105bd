package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type MemoryEngineOptions struct {
	// 模拟引擎拒绝用户代码
	FailSetup bool `cfg:"failSetup"`
	// 模拟引擎故障
	FailTeardown bool `cfg:"failTeardown"`
}

// MemoryEngine 进程内引擎，记录安装和卸载的版本，用于本地运行和测试
type MemoryEngine struct {
	mu        sync.Mutex
	live      map[uint64]uint64
	setups    []SetupRequest
	teardowns []TeardownRequest

	failSetup    bool
	failTeardown bool

	SetupHook    func(req *SetupRequest) error
	TeardownHook func(req *TeardownRequest) error
}

func NewMemoryEngineWithOptions(options *MemoryEngineOptions) *MemoryEngine {
	e := &MemoryEngine{live: map[uint64]uint64{}}
	if options != nil {
		e.failSetup = options.FailSetup
		e.failTeardown = options.FailTeardown
	}
	return e
}

func (e *MemoryEngine) Setup(ctx context.Context, req *SetupRequest) error {
	if e.SetupHook != nil {
		if err := e.SetupHook(req); err != nil {
			return err
		}
	}
	if e.failSetup {
		return &ScriptError{Message: "setup rejected"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if req.PreviousWorkerVersion != nil {
		if live, ok := e.live[req.WorkerID]; !ok || live != *req.PreviousWorkerVersion {
			return &CodeError{Code: 404}
		}
	}
	e.live[req.WorkerID] = req.WorkerVersion
	e.setups = append(e.setups, *req)
	return nil
}

func (e *MemoryEngine) Teardown(ctx context.Context, req *TeardownRequest) error {
	if e.TeardownHook != nil {
		if err := e.TeardownHook(req); err != nil {
			return err
		}
	}
	if e.failTeardown {
		return errors.New("teardown failed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if live, ok := e.live[req.WorkerID]; ok && live == req.WorkerVersion {
		delete(e.live, req.WorkerID)
	}
	e.teardowns = append(e.teardowns, *req)
	return nil
}

// LiveVersion 返回引擎上 worker 当前的版本
func (e *MemoryEngine) LiveVersion(workerID uint64) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.live[workerID]
	return v, ok
}

func (e *MemoryEngine) Setups() []SetupRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SetupRequest(nil), e.setups...)
}

func (e *MemoryEngine) Teardowns() []TeardownRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TeardownRequest(nil), e.teardowns...)
}
