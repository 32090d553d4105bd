package log

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/log/logger"
	"github.com/hatlonely/workerplane/ref"
)

func init() {
	ref.MustRegisterT[logger.SLog](logger.NewSLogWithOptions)

	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	SetDefault(l)
}

var defaultLogger atomic.Pointer[loggerHolder]

type loggerHolder struct {
	logger.Logger
}

func Default() logger.Logger {
	return defaultLogger.Load().Logger
}

func SetDefault(l logger.Logger) {
	defaultLogger.Store(&loggerHolder{l})
}

// NewLoggerWithOptions 根据 TypeOptions 创建日志器，为空时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil || options.Type == "" {
		return Default(), nil
	}
	l, err := ref.NewT[logger.Logger](options)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	return l, nil
}
