package engine

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/ref"
)

func init() {
	ref.MustRegisterT[HTTPEngine](NewHTTPEngineWithOptions)
	ref.MustRegisterT[MemoryEngine](NewMemoryEngineWithOptions)
}

// SetupRequest 在计算引擎上安装 worker 的一个版本
type SetupRequest struct {
	LogID         string `msgpack:"logId"`
	WorkerID      uint64 `msgpack:"workerId"`
	WorkerVersion uint64 `msgpack:"workerVersion"`
	// 更新时为上一个版本，新建时为空
	PreviousWorkerVersion *uint64  `msgpack:"previousWorkerVersion,omitempty"`
	WorkerIndex           []byte   `msgpack:"workerIndex"`
	Code                  []string `msgpack:"code"`
}

type TeardownRequest struct {
	LogID         string `msgpack:"logId"`
	WorkerID      uint64 `msgpack:"workerId"`
	WorkerVersion uint64 `msgpack:"workerVersion"`
}

// Engine 计算引擎客户端
type Engine interface {
	Setup(ctx context.Context, req *SetupRequest) error
	Teardown(ctx context.Context, req *TeardownRequest) error
}

// CodeError 引擎返回的错误码
type CodeError struct {
	Code uint16 `msgpack:"code"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("engine error code %d", e.Code)
}

// ScriptError 用户代码在引擎中加载时抛出的异常
type ScriptError struct {
	Message string `msgpack:"message"`
	Stack   string `msgpack:"stack"`
}

func (e *ScriptError) Error() string {
	if e.Stack == "" {
		return "worker script error: " + e.Message
	}
	return "worker script error: " + e.Message + "\n" + e.Stack
}

func NewEngineWithOptions(options *ref.TypeOptions) (Engine, error) {
	e, err := ref.NewT[Engine](options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewT failed")
	}
	return e, nil
}
