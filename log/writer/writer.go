package writer

import (
	"io"

	"github.com/hatlonely/workerplane/ref"
)

func init() {
	ref.MustRegisterT[ConsoleWriter](NewConsoleWriterWithOptions)
	ref.MustRegisterT[FileWriter](NewFileWriterWithOptions)
	ref.MustRegisterT[MultiWriter](NewMultiWriterWithOptions)
}

// Writer 日志输出器
type Writer interface {
	io.Writer
	io.Closer
}
