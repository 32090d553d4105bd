package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/log/writer"
	"github.com/hatlonely/workerplane/ref"
)

// LevelCritical 高于 error 的级别
const LevelCritical = slog.LevelError + 4

// SLogOptions 日志初始化选项
type SLogOptions struct {
	// 日志级别：debug, info, warn, error, critical
	Level string `cfg:"level" def:"info" validate:"omitempty,oneof=debug info warn warning error critical"`

	// 输出格式：text, json
	Format string `cfg:"format" def:"text" validate:"omitempty,oneof=text json"`

	// 输出目标，为空时输出到 stdout
	Output *ref.TypeOptions `cfg:"output"`

	TimeFormat string `cfg:"timeFormat"`

	// 是否显示调用者信息
	AddSource bool `cfg:"addSource"`

	// 自定义字段
	Fields map[string]any `cfg:"fields"`
}

type SLog struct {
	slogger *slog.Logger
}

func NewSLogWithOptions(options *SLogOptions) (*SLog, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	var w writer.Writer
	if options.Output != nil && options.Output.Type != "" {
		var err error
		if w, err = ref.NewT[writer.Writer](options.Output); err != nil {
			return nil, errors.WithMessage(err, "create writer failed")
		}
	} else {
		var err error
		if w, err = writer.NewConsoleWriterWithOptions(nil); err != nil {
			return nil, errors.WithMessage(err, "create console writer failed")
		}
	}

	return NewSLogWithWriter(options, w)
}

// NewSLogWithWriter 使用指定的输出创建日志器
func NewSLogWithWriter(options *SLogOptions, w io.Writer) (*SLog, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid log level")
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: options.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) != 0 {
				return a
			}
			switch a.Key {
			case slog.LevelKey:
				if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
					return slog.String(slog.LevelKey, "CRITICAL")
				}
			case slog.TimeKey:
				if options.TimeFormat != "" {
					return slog.String(slog.TimeKey, a.Value.Time().Format(options.TimeFormat))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, errors.Errorf("unsupported format: %s", options.Format)
	}

	slogger := slog.New(handler)
	if len(options.Fields) > 0 {
		args := make([]any, 0, len(options.Fields)*2)
		for k, v := range options.Fields {
			args = append(args, k, v)
		}
		slogger = slogger.With(args...)
	}

	return &SLog{slogger: slogger}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown level: %s", level)
	}
}

func (l *SLog) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

func (l *SLog) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

func (l *SLog) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

func (l *SLog) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

func (l *SLog) Critical(msg string, args ...any) {
	l.slogger.Log(context.Background(), LevelCritical, msg, args...)
}

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) CriticalContext(ctx context.Context, msg string, args ...any) {
	l.slogger.Log(ctx, LevelCritical, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...)}
}

func (l *SLog) WithGroup(name string) Logger {
	return &SLog{slogger: l.slogger.WithGroup(name)}
}

// Discard 丢弃所有输出，测试中使用
func Discard() Logger {
	return &SLog{slogger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
