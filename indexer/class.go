package indexer

import (
	"strings"

	"github.com/grafana/sobek/ast"
	"github.com/grafana/sobek/file"

	"github.com/hatlonely/workerplane/errs"
)

type fileWalker struct {
	st     *indexState
	file   File
	fileID uint16
}

// offset 将语法树中的位置转换为字节偏移，单文件解析时 base 固定为 1
func (fw *fileWalker) offset(idx file.Idx) int {
	return int(idx) - 1
}

func (fw *fileWalker) line(idx file.Idx) int {
	off := fw.offset(idx)
	if off < 0 {
		return 0
	}
	if off > len(fw.file.Code) {
		off = len(fw.file.Code)
	}
	return strings.Count(fw.file.Code[:off], "\n") + 1
}

func (fw *fileWalker) source(node ast.Node) string {
	return fw.span(fw.offset(node.Idx0()), fw.offset(node.Idx1()))
}

func (fw *fileWalker) span(start, end int) string {
	if start < 0 || end > len(fw.file.Code) || start > end {
		return ""
	}
	return fw.file.Code[start:end]
}

func (fw *fileWalker) errorf(idx file.Idx, format string, args ...any) error {
	return errs.Validation(errs.CodeInvalidWorkerCode, format, args...).At(fw.file.Name, fw.line(idx))
}

// namedClass 匿名类（export default class {}）没有可登记的名称，托管基类的匿名类直接拒绝
func (fw *fileWalker) namedClass(cls *ast.ClassLiteral) (bool, error) {
	if cls.Name != nil {
		return fw.class(cls)
	}
	if ident, ok := cls.SuperClass.(*ast.Identifier); ok {
		switch ident.Name.String() {
		case baseService, baseData, baseMessage:
			return false, fw.errorf(cls.Idx0(), "class extending %s must be named", ident.Name.String())
		}
	}
	return false, nil
}

// namedFunction 匿名的默认导出函数没有可调用的名称，不登记
func (fw *fileWalker) namedFunction(fn *ast.FunctionLiteral, start int) error {
	if fn.Name == nil || fn.Name.Name == "default" {
		return nil
	}
	return fw.function(fn, start)
}

// class 解析类声明，返回是否为平台托管的类
func (fw *fileWalker) class(cls *ast.ClassLiteral) (bool, error) {
	name := cls.Name.Name.String()
	if fw.st.classNames[name] {
		return false, fw.errorf(cls.Idx0(), "duplicate class name %q, class names must be unique across all files", name)
	}
	fw.st.classNames[name] = true

	base := ""
	if ident, ok := cls.SuperClass.(*ast.Identifier); ok {
		base = ident.Name.String()
	}

	switch base {
	case baseService:
		return true, fw.service(name, cls)
	case baseData, baseMessage:
		ctor, methods, err := fw.classMetadata(name, cls)
		if err != nil {
			return false, err
		}
		classID, err := fw.st.ids.allocate(name)
		if err != nil {
			return false, err
		}
		if base == baseData {
			if ctor == nil {
				return false, fw.errorf(cls.Idx0(), "data class %q must have a constructor", name)
			}
			fw.st.index.Data = append(fw.st.index.Data, DataEntry{
				Name: name, ClassID: classID, FileID: fw.fileID, Constructor: *ctor, Methods: methods, SourceCode: fw.source(cls),
			})
		} else {
			fw.st.index.Messages = append(fw.st.index.Messages, MessageEntry{
				Name: name, ClassID: classID, FileID: fw.fileID, Constructor: ctor, Methods: methods, SourceCode: fw.source(cls),
			})
		}
		return true, nil
	default:
		ctor, methods, err := fw.classMetadata(name, cls)
		if err != nil {
			return false, err
		}
		fw.st.index.Classes = append(fw.st.index.Classes, ClassEntry{
			Name: name, Constructor: ctor, Methods: methods, SourceCode: fw.source(cls),
		})
		return false, nil
	}
}

// service 服务类的构造函数只能接收一个参数并原样传给 super，不允许访问器，至少一个方法
func (fw *fileWalker) service(name string, cls *ast.ClassLiteral) error {
	var methods []ServiceMethodEntry
	seen := map[string]bool{}
	hasCtor := false
	methodID := UserMethodIDStart

	for _, element := range cls.Body {
		md, ok := element.(*ast.MethodDefinition)
		if !ok || md.Static || md.Computed {
			continue
		}
		key, ok := propertyKey(md.Key)
		if !ok {
			continue
		}

		if key == "constructor" {
			if hasCtor {
				return fw.errorf(md.Idx0(), "service %q has more than one constructor", name)
			}
			if err := fw.serviceConstructor(name, md); err != nil {
				return err
			}
			hasCtor = true
			continue
		}

		if md.Kind == ast.PropertyKindGet || md.Kind == ast.PropertyKindSet {
			return fw.errorf(md.Idx0(), "service %q cannot have getter or setter %q", name, key)
		}
		if seen[key] {
			return fw.errorf(md.Idx0(), "duplicate method %q in service %q", key, name)
		}
		seen[key] = true

		args, err := fw.arguments(md.Body.ParameterList)
		if err != nil {
			return err
		}
		methods = append(methods, ServiceMethodEntry{MethodID: methodID, Name: key, ReturnType: anyType, Arguments: args})
		methodID++
	}

	if !hasCtor {
		return fw.errorf(cls.Idx0(), "service %q must declare a constructor that passes its single argument to super", name)
	}
	if len(methods) == 0 {
		return fw.errorf(cls.Idx0(), "service %q must have at least one method", name)
	}

	classID, err := fw.st.ids.allocate(name)
	if err != nil {
		return err
	}
	fw.st.index.Services = append(fw.st.index.Services, ServiceEntry{
		Name: name, ClassID: classID, FileID: fw.fileID, Methods: methods,
	})
	return nil
}

func (fw *fileWalker) serviceConstructor(name string, md *ast.MethodDefinition) error {
	params := md.Body.ParameterList
	if params == nil || len(params.List) != 1 || params.Rest != nil {
		return fw.errorf(md.Idx0(), "service %q constructor must have exactly one argument", name)
	}
	param, ok := params.List[0].Target.(*ast.Identifier)
	if !ok || params.List[0].Initializer != nil {
		return fw.errorf(md.Idx0(), "service %q constructor argument must be a plain identifier", name)
	}

	for _, stmt := range md.Body.Body.List {
		es, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			continue
		}
		call, ok := es.Expression.(*ast.CallExpression)
		if !ok {
			continue
		}
		if _, ok := call.Callee.(*ast.SuperExpression); !ok {
			continue
		}
		if len(call.ArgumentList) != 1 {
			return fw.errorf(call.Idx0(), "service %q passes invalid arguments to super", name)
		}
		if arg, ok := call.ArgumentList[0].(*ast.Identifier); ok && arg.Name == param.Name {
			return nil
		}
		return fw.errorf(call.Idx0(), "service %q constructor parameter %q is not passed to super", name, param.Name.String())
	}
	return fw.errorf(md.Idx0(), "service %q constructor must call super(%s)", name, param.Name.String())
}

// classMetadata 提取普通类、数据类和消息类的构造函数与方法
func (fw *fileWalker) classMetadata(name string, cls *ast.ClassLiteral) (*Constructor, []MethodEntry, error) {
	var ctor *Constructor
	var methods []MethodEntry
	kinds := map[string]map[MethodKind]bool{}

	for _, element := range cls.Body {
		md, ok := element.(*ast.MethodDefinition)
		if !ok || md.Static || md.Computed {
			continue
		}
		key, ok := propertyKey(md.Key)
		if !ok {
			continue
		}

		args, err := fw.arguments(md.Body.ParameterList)
		if err != nil {
			return nil, nil, err
		}

		if key == "constructor" {
			if ctor != nil {
				return nil, nil, fw.errorf(md.Idx0(), "class %q has more than one constructor", name)
			}
			ctor = &Constructor{Arguments: args}
			continue
		}

		kind, returnType := MethodKindNormal, anyType
		switch md.Kind {
		case ast.PropertyKindGet:
			kind = MethodKindGetter
		case ast.PropertyKindSet:
			kind, returnType = MethodKindSetter, voidType
		}

		// 同名同类型重复，或者访问器与普通方法同名
		existing := kinds[key]
		if existing[kind] || (kind == MethodKindNormal && len(existing) > 0) || (kind != MethodKindNormal && existing[MethodKindNormal]) {
			return nil, nil, fw.errorf(md.Idx0(), "duplicate %s %q in class %q", kind, key, name)
		}
		if existing == nil {
			existing = map[MethodKind]bool{}
			kinds[key] = existing
		}
		existing[kind] = true

		methods = append(methods, MethodEntry{Name: key, ReturnType: returnType, Arguments: args, Kind: kind})
	}
	return ctor, methods, nil
}

// function 登记顶层函数，start 为去掉 export 修饰后函数源码的起始偏移
func (fw *fileWalker) function(fn *ast.FunctionLiteral, start int) error {
	name := fn.Name.Name.String()
	if fw.st.functionNames[name] {
		return fw.errorf(fn.Idx0(), "duplicate function name %q, function names must be unique across all files", name)
	}
	fw.st.functionNames[name] = true

	args, err := fw.arguments(fn.ParameterList)
	if err != nil {
		return err
	}
	fw.st.index.Functions = append(fw.st.index.Functions, FunctionEntry{
		Name: name, ReturnType: anyType, Arguments: args, SourceCode: fw.span(start, fw.offset(fn.Idx1())),
	})
	return nil
}

// arguments 只支持普通标识符参数，解构参数无法生成调用签名
func (fw *fileWalker) arguments(params *ast.ParameterList) ([]Argument, error) {
	if params == nil {
		return nil, nil
	}
	args := make([]Argument, 0, len(params.List))
	for _, p := range params.List {
		ident, ok := p.Target.(*ast.Identifier)
		if !ok {
			return nil, fw.errorf(p.Idx0(), "only identifier arguments are supported")
		}
		args = append(args, Argument{Name: ident.Name.String(), Type: anyType})
	}
	if rest, ok := params.Rest.(*ast.Identifier); ok {
		args = append(args, Argument{Name: rest.Name.String(), Type: anyType})
	}
	return args, nil
}

func propertyKey(key ast.Expression) (string, bool) {
	switch k := key.(type) {
	case *ast.StringLiteral:
		return k.Value.String(), true
	case *ast.Identifier:
		return k.Name.String(), true
	default:
		return "", false
	}
}
