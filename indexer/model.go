package indexer

// Language 用户代码语言
type Language string

const (
	LanguageJavaScript Language = "javascript"
)

// MethodKind 方法类型
type MethodKind uint8

const (
	MethodKindNormal MethodKind = iota
	MethodKindGetter
	MethodKindSetter
)

func (k MethodKind) String() string {
	switch k {
	case MethodKindGetter:
		return "getter"
	case MethodKindSetter:
		return "setter"
	default:
		return "method"
	}
}

// File 编译后的一个源文件，Name 为相对路径
type File struct {
	Name string `msgpack:"name" json:"name"`
	Code string `msgpack:"code" json:"code"`
}

// WorkerIndex worker 的结构化索引，与代码一起交给计算引擎
type WorkerIndex struct {
	WorkerID      uint64          `msgpack:"workerId"`
	WorkerVersion uint64          `msgpack:"workerVersion"`
	WorkerName    string          `msgpack:"workerName"`
	Language      Language        `msgpack:"language"`
	Files         []FileEntry     `msgpack:"files"`
	Functions     []FunctionEntry `msgpack:"functions"`
	Classes       []ClassEntry    `msgpack:"classes"`
	Services      []ServiceEntry  `msgpack:"services"`
	Data          []DataEntry     `msgpack:"data"`
	Messages      []MessageEntry  `msgpack:"messages"`
}

type FileEntry struct {
	FileID   uint16 `msgpack:"fileId"`
	FileName string `msgpack:"fileName"`
}

type Argument struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type"`
}

type Constructor struct {
	Arguments []Argument `msgpack:"arguments"`
}

type MethodEntry struct {
	Name       string     `msgpack:"name"`
	ReturnType string     `msgpack:"returnType"`
	Arguments  []Argument `msgpack:"arguments"`
	Kind       MethodKind `msgpack:"kind"`
}

type FunctionEntry struct {
	Name       string     `msgpack:"name"`
	ReturnType string     `msgpack:"returnType"`
	Arguments  []Argument `msgpack:"arguments"`
	SourceCode string     `msgpack:"sourceCode"`
}

// ClassEntry 不受平台管理的普通类
type ClassEntry struct {
	Name        string        `msgpack:"name"`
	Constructor *Constructor  `msgpack:"constructor"`
	Methods     []MethodEntry `msgpack:"methods"`
	SourceCode  string        `msgpack:"sourceCode"`
}

type ServiceMethodEntry struct {
	MethodID   uint16     `msgpack:"methodId"`
	Name       string     `msgpack:"name"`
	ReturnType string     `msgpack:"returnType"`
	Arguments  []Argument `msgpack:"arguments"`
}

type ServiceEntry struct {
	Name    string               `msgpack:"name"`
	ClassID uint16               `msgpack:"classId"`
	FileID  uint16               `msgpack:"fileId"`
	Methods []ServiceMethodEntry `msgpack:"methods"`
}

// DataEntry 构造函数必须存在
type DataEntry struct {
	Name        string        `msgpack:"name"`
	ClassID     uint16        `msgpack:"classId"`
	FileID      uint16        `msgpack:"fileId"`
	Constructor Constructor   `msgpack:"constructor"`
	Methods     []MethodEntry `msgpack:"methods"`
	SourceCode  string        `msgpack:"sourceCode"`
}

type MessageEntry struct {
	Name        string        `msgpack:"name"`
	ClassID     uint16        `msgpack:"classId"`
	FileID      uint16        `msgpack:"fileId"`
	Constructor *Constructor  `msgpack:"constructor"`
	Methods     []MethodEntry `msgpack:"methods"`
	SourceCode  string        `msgpack:"sourceCode"`
}

// MaxClassID 返回索引中出现的最大 classId
func (w *WorkerIndex) MaxClassID() uint16 {
	var max uint16
	for _, s := range w.Services {
		max = maxID(max, s.ClassID)
	}
	for _, d := range w.Data {
		max = maxID(max, d.ClassID)
	}
	for _, m := range w.Messages {
		max = maxID(max, m.ClassID)
	}
	return max
}

func maxID(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}
