package main

import (
	"fmt"
	"os"

	"github.com/hatlonely/workerplane/errs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode 按错误类别区分退出码，便于脚本判断是否需要重试
func exitCode(err error) int {
	e, ok := errs.As(err)
	if !ok {
		return 1
	}
	switch e.Kind {
	case errs.KindValidation:
		return 2
	case errs.KindConflict:
		return 3
	case errs.KindNotFound:
		return 4
	case errs.KindQuota:
		return 5
	default:
		return 1
	}
}
