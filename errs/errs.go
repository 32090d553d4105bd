package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误分类，决定调用方如何处理
type Kind int

const (
	// KindValidation 用户代码或请求不合法，修改后重试
	KindValidation Kind = iota + 1
	// KindConflict 名称冲突或版本过期，拉取最新状态后重试
	KindConflict
	// KindQuota 超出平台配额
	KindQuota
	// KindNotFound 资源不存在
	KindNotFound
	// KindPlatform 平台内部故障，补偿已执行
	KindPlatform
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindQuota:
		return "Quota"
	case KindNotFound:
		return "NotFound"
	case KindPlatform:
		return "Platform"
	default:
		return "Unknown"
	}
}

const (
	CodeParseError                   = "ParseError"
	CodeInvalidWorkerCode            = "InvalidWorkerCode"
	CodeInvalidClassMapping          = "InvalidClassMapping"
	CodeUnknownClassTag              = "UnknownClassTag"
	CodeInvalidRequest               = "InvalidRequest"
	CodeMissingTypeDefinitions       = "MissingTypeDefinitions"
	CodeWorkerScriptError            = "WorkerScriptError"
	CodeDuplicateWorkerName          = "DuplicateWorkerName"
	CodeWorkerNotFoundPullLatest     = "WorkerNotFoundPullLatest"
	CodeWorkerNotFoundByName         = "WorkerNotFoundByName"
	CodeUserNotFound                 = "UserNotFound"
	CodeUserWorkerLimitReached       = "UserWorkerLimitReached"
	CodeMaxWorkerLimitReached        = "MaxWorkerLimitReached"
	CodeMaxAccountLimitReached       = "MaxAccountLimitReached"
	CodeDuplicateAccount             = "DuplicateAccount"
	CodeUnknownWorkerCreationFailure = "UnknownWorkerCreationFailure"
	CodeUnknownWorkerUpdateFailure   = "UnknownWorkerUpdateFailure"
	CodeEngineFault                  = "EngineFault"
	CodeKeyCacheFault                = "KeyCacheFault"
	CodeMetaStoreFault               = "MetaStoreFault"
)

// Error 带分类和错误码的错误，File/Line 指向用户代码位置
type Error struct {
	Kind    Kind
	Code    string
	Message string
	File    string
	Line    int
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.File != "" {
		if e.Line > 0 {
			msg = fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
		} else {
			msg = fmt.Sprintf("%s: %s", e.File, msg)
		}
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Code, msg)
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// At 设置用户代码位置
func (e *Error) At(file string, line int) *Error {
	e.File = file
	e.Line = line
	return e
}

// WithCause 附加底层错误
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func New(kind Kind, code string, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(code string, format string, args ...any) *Error {
	return New(KindValidation, code, format, args...)
}

func Conflict(code string, format string, args ...any) *Error {
	return New(KindConflict, code, format, args...)
}

func Quota(code string, format string, args ...any) *Error {
	return New(KindQuota, code, format, args...)
}

func NotFound(code string, format string, args ...any) *Error {
	return New(KindNotFound, code, format, args...)
}

func Platform(code string, format string, args ...any) *Error {
	return New(KindPlatform, code, format, args...)
}

// As 在错误链中查找 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// CodeOf 返回错误码，非 *Error 返回空字符串
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
