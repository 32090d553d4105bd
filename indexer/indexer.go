package indexer

import (
	"path"
	"strings"

	"github.com/grafana/sobek/ast"
	"github.com/grafana/sobek/parser"

	"github.com/hatlonely/workerplane/errs"
)

const (
	// UserMethodIDStart 服务方法 ID 起始值，更小的 ID 保留给平台
	UserMethodIDStart uint16 = 100

	anyType  = "any"
	voidType = "void"

	baseService = "Service"
	baseData    = "Data"
	baseMessage = "Message"
)

type Options struct {
	// 运行时模块名，import 路径中包含该名称时改写为裸模块名
	KernelModuleName string `cfg:"kernelModuleName" def:"worker-runtime"`
	// 用户代码中禁止出现的平台内部标识前缀
	InternalPrefix string `cfg:"internalPrefix" def:"__internal_worker"`
}

type Indexer struct {
	kernelModuleName string
	internalPrefix   string
}

func NewIndexerWithOptions(options *Options) *Indexer {
	ix := &Indexer{kernelModuleName: "worker-runtime", internalPrefix: "__internal_worker"}
	if options != nil && options.KernelModuleName != "" {
		ix.kernelModuleName = options.KernelModuleName
	}
	if options != nil && options.InternalPrefix != "" {
		ix.internalPrefix = options.InternalPrefix
	}
	return ix
}

type Input struct {
	WorkerID      uint64
	WorkerVersion uint64
	WorkerName    string
	Language      Language
	Files         []File
	// 已有的类名到 classId 映射，新 worker 为空
	ClassMappings map[string]uint16
	LastClassID   uint16
}

type Result struct {
	Index      *WorkerIndex
	Directives []Directive
	// 映射中存在但代码中已删除的类
	RetiredClasses []string
}

type indexState struct {
	index         *WorkerIndex
	ids           *classIDAllocator
	baseNames     map[string]bool
	classNames    map[string]bool
	functionNames map[string]bool
	directives    []Directive
}

// Index 解析全部文件生成 worker 索引，任何错误都不返回部分结果
func (ix *Indexer) Index(in *Input) (*Result, error) {
	if in.Language != "" && in.Language != LanguageJavaScript {
		return nil, errs.Validation(errs.CodeInvalidRequest, "unsupported worker language %q", in.Language)
	}
	if len(in.Files) == 0 {
		return nil, errs.Validation(errs.CodeInvalidRequest, "worker has no files")
	}
	if len(in.Files) > int(^uint16(0)) {
		return nil, errs.Validation(errs.CodeInvalidRequest, "too many files: %d", len(in.Files))
	}

	st := &indexState{
		index: &WorkerIndex{
			WorkerID:      in.WorkerID,
			WorkerVersion: in.WorkerVersion,
			WorkerName:    in.WorkerName,
			Language:      LanguageJavaScript,
		},
		ids:           newClassIDAllocator(in.ClassMappings, in.LastClassID),
		baseNames:     map[string]bool{},
		classNames:    map[string]bool{},
		functionNames: map[string]bool{},
	}

	for i, f := range in.Files {
		fileID := uint16(i + 1)
		if err := ix.indexFile(st, fileID, f); err != nil {
			return nil, err
		}
		st.index.Files = append(st.index.Files, FileEntry{FileID: fileID, FileName: f.Name})
	}

	return &Result{Index: st.index, Directives: st.directives, RetiredClasses: st.ids.missing()}, nil
}

func (ix *Indexer) indexFile(st *indexState, fileID uint16, f File) error {
	baseName := strings.TrimSuffix(f.Name, path.Ext(f.Name))
	if st.baseNames[baseName] {
		return errs.Validation(errs.CodeInvalidWorkerCode, "duplicate file name, modules cannot share a name without extension").At(f.Name, 0)
	}
	st.baseNames[baseName] = true

	// 可以通过字符串拼接绕过，只拦截直接引用
	if strings.Contains(f.Code, ix.internalPrefix) {
		return errs.Validation(errs.CodeInvalidWorkerCode, "found reference to platform internal logic").At(f.Name, 0)
	}

	program, err := parser.ParseFile(nil, f.Name, f.Code, 0, parser.IsModule, parser.WithDisableSourceMaps)
	if err != nil {
		return parseError(f.Name, err)
	}

	fw := &fileWalker{st: st, file: f, fileID: fileID}
	exported := exportedNames(program.Body)
	var instructions []Instruction
	for i, stmt := range program.Body {
		switch node := stmt.(type) {
		case *ast.ImportDeclaration:
			specifier := node.ModuleSpecifier
			if node.FromClause != nil {
				specifier = node.FromClause.ModuleSpecifier
			}
			if ins, ok := ix.rewriteSpecifier(fw, program.Body, i, specifier.String()); ok {
				instructions = append(instructions, ins)
			}
		case *ast.ExportDeclaration:
			if node.FromClause != nil {
				if ins, ok := ix.rewriteSpecifier(fw, program.Body, i, node.FromClause.ModuleSpecifier.String()); ok {
					instructions = append(instructions, ins)
				}
			}
			if node.ClassDeclaration != nil {
				if _, err := fw.namedClass(node.ClassDeclaration.Class); err != nil {
					return err
				}
			}
			if node.HoistableDeclaration != nil && node.HoistableDeclaration.FunctionDeclaration != nil {
				fn := node.HoistableDeclaration.FunctionDeclaration.Function
				start := skipKeyword(f.Code, fw.offset(node.Idx1()), "default")
				if err := fw.namedFunction(fn, start); err != nil {
					return err
				}
			}
		case *ast.ClassDeclaration:
			managed, err := fw.namedClass(node.Class)
			if err != nil {
				return err
			}
			if managed && !exported[node.Class.Name.Name.String()] {
				// 引擎通过模块导出获取托管类
				instructions = append(instructions, Insert(fw.offset(node.Class.Idx0()), "export "))
			}
		case *ast.FunctionDeclaration:
			if err := fw.namedFunction(node.Function, fw.offset(node.Function.Idx0())); err != nil {
				return err
			}
		}
	}

	if len(instructions) > 0 {
		st.directives = append(st.directives, Directive{File: f, Instructions: instructions})
	}
	return nil
}

// rewriteSpecifier 把包含运行时模块名的模块路径改写为裸模块名
func (ix *Indexer) rewriteSpecifier(fw *fileWalker, body []ast.Statement, i int, specifier string) (Instruction, bool) {
	if !strings.Contains(specifier, ix.kernelModuleName) {
		return Instruction{}, false
	}
	start, end, ok := specifierRange(fw.file.Code, fw.offset(body[i].Idx0()), statementEnd(fw, body, i))
	if !ok {
		return Instruction{}, false
	}
	return Replace(start, end, `"`+ix.kernelModuleName+`"`), true
}

func parseError(fileName string, err error) error {
	switch e := err.(type) {
	case parser.ErrorList:
		if len(e) > 0 {
			return errs.Validation(errs.CodeParseError, "%s", e[0].Message).At(fileName, e[0].Position.Line)
		}
	case *parser.Error:
		return errs.Validation(errs.CodeParseError, "%s", e.Message).At(fileName, e.Position.Line)
	}
	return errs.Validation(errs.CodeParseError, "%s", err.Error()).At(fileName, 0)
}
