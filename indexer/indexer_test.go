package indexer

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/workerplane/errs"
)

const fooService = `import { Service } from "../worker-runtime/index.js";

export class Foo extends Service {
    constructor(x) {
        super(x);
    }

    bar() {
        return 1;
    }
}
`

func index(files ...File) (*Result, error) {
	return NewIndexerWithOptions(nil).Index(&Input{WorkerID: 1, WorkerVersion: 1, WorkerName: "alpha", Files: files})
}

func TestIndexService(t *testing.T) {
	Convey("单个服务类", t, func() {
		res, err := index(File{Name: "foo.js", Code: fooService})
		So(err, ShouldBeNil)
		So(res.Index.Files, ShouldResemble, []FileEntry{{FileID: 1, FileName: "foo.js"}})
		So(res.Index.Services, ShouldHaveLength, 1)

		foo := res.Index.Services[0]
		So(foo.Name, ShouldEqual, "Foo")
		So(foo.ClassID, ShouldEqual, 1)
		So(foo.FileID, ShouldEqual, 1)
		So(foo.Methods, ShouldResemble, []ServiceMethodEntry{{MethodID: 100, Name: "bar", ReturnType: "any", Arguments: []Argument{}}})

		So(CreateClassMappings(res.Index), ShouldResemble, []ClassMapping{{ClassName: "Foo", ClassID: 1}})

		Convey("运行时模块路径被改写", func() {
			So(res.Directives, ShouldHaveLength, 1)
			out := res.Directives[0].Apply()
			So(out.Code, ShouldStartWith, `import { Service } from "worker-runtime";`)
			So(strings.Count(out.Code, "export class Foo"), ShouldEqual, 1)
		})
	})

	Convey("方法 ID 按声明顺序递增，静态方法被忽略", t, func() {
		res, err := index(File{Name: "a.js", Code: `
class A extends Service {
    constructor(ctx) { super(ctx); }
    static helper() {}
    one(a, b) {}
    two(...rest) {}
}
`})
		So(err, ShouldBeNil)
		methods := res.Index.Services[0].Methods
		So(methods, ShouldHaveLength, 2)
		So(methods[0].MethodID, ShouldEqual, 100)
		So(methods[0].Arguments, ShouldResemble, []Argument{{Name: "a", Type: "any"}, {Name: "b", Type: "any"}})
		So(methods[1].MethodID, ShouldEqual, 101)
		So(methods[1].Arguments, ShouldResemble, []Argument{{Name: "rest", Type: "any"}})
	})

	Convey("服务类规则", t, func() {
		cases := []struct {
			name string
			code string
			line int
		}{
			{"没有构造函数", "class A extends Service {\n  m() {}\n}", 1},
			{"构造函数参数个数错误", "class A extends Service {\n  constructor(a, b) { super(a); }\n  m() {}\n}", 2},
			{"构造函数参数是解构", "class A extends Service {\n  constructor({a}) { super(a); }\n  m() {}\n}", 2},
			{"没有调用 super", "class A extends Service {\n  constructor(a) { this.a = a; }\n  m() {}\n}", 2},
			{"super 参数个数错误", "class A extends Service {\n  constructor(a) {\n    super(a, 1);\n  }\n  m() {}\n}", 3},
			{"super 参数不是构造参数", "class A extends Service {\n  constructor(a) {\n    super(b);\n  }\n  m() {}\n}", 3},
			{"getter", "class A extends Service {\n  constructor(a) { super(a); }\n  get x() { return 1; }\n}", 3},
			{"setter", "class A extends Service {\n  constructor(a) { super(a); }\n  m() {}\n  set x(v) {}\n}", 4},
			{"没有方法", "class A extends Service {\n  constructor(a) { super(a); }\n}", 1},
			{"重复方法", "class A extends Service {\n  constructor(a) { super(a); }\n  m() {}\n  m() {}\n}", 4},
		}
		for _, c := range cases {
			Convey(c.name, func() {
				_, err := index(File{Name: "a.js", Code: c.code})
				So(err, ShouldNotBeNil)
				e, ok := errs.As(err)
				So(ok, ShouldBeTrue)
				So(e.Kind, ShouldEqual, errs.KindValidation)
				So(e.Code, ShouldEqual, errs.CodeInvalidWorkerCode)
				So(e.File, ShouldEqual, "a.js")
				So(e.Line, ShouldEqual, c.line)
			})
		}
	})
}

func TestIndexDataAndMessage(t *testing.T) {
	Convey("数据类和消息类", t, func() {
		code := `
export class Baz extends Data {
    constructor(id, name) { super(id); this.name = name; }
    get title() { return this.name; }
    set title(v) { this.name = v; }
    rename(v) { this.name = v; }
}

class Ping extends Message {
    describe() { return "ping"; }
}

class Helper {
    constructor(a) { this.a = a; }
    run() {}
}

function util(a, b) { return a + b; }
`
		res, err := index(File{Name: "model.js", Code: code})
		So(err, ShouldBeNil)

		So(res.Index.Data, ShouldHaveLength, 1)
		baz := res.Index.Data[0]
		So(baz.ClassID, ShouldEqual, 1)
		So(baz.Constructor.Arguments, ShouldResemble, []Argument{{Name: "id", Type: "any"}, {Name: "name", Type: "any"}})
		So(baz.Methods, ShouldResemble, []MethodEntry{
			{Name: "title", ReturnType: "any", Arguments: []Argument{}, Kind: MethodKindGetter},
			{Name: "title", ReturnType: "void", Arguments: []Argument{{Name: "v", Type: "any"}}, Kind: MethodKindSetter},
			{Name: "rename", ReturnType: "any", Arguments: []Argument{{Name: "v", Type: "any"}}, Kind: MethodKindNormal},
		})
		So(baz.SourceCode, ShouldStartWith, "class Baz extends Data {")
		So(baz.SourceCode, ShouldEndWith, "}")

		So(res.Index.Messages, ShouldHaveLength, 1)
		So(res.Index.Messages[0].ClassID, ShouldEqual, 2)
		So(res.Index.Messages[0].Constructor, ShouldBeNil)

		So(res.Index.Classes, ShouldHaveLength, 1)
		So(res.Index.Classes[0].Name, ShouldEqual, "Helper")
		So(res.Index.Classes[0].Constructor, ShouldNotBeNil)

		So(res.Index.Functions, ShouldResemble, []FunctionEntry{{
			Name: "util", ReturnType: "any", Arguments: []Argument{{Name: "a", Type: "any"}, {Name: "b", Type: "any"}},
			SourceCode: "function util(a, b) { return a + b; }",
		}})

		Convey("只为未导出的托管类插入 export", func() {
			So(res.Directives, ShouldHaveLength, 1)
			out := res.Directives[0].Apply().Code
			So(out, ShouldContainSubstring, "export class Ping extends Message")
			So(out, ShouldNotContainSubstring, "export class Helper")
			So(strings.Count(out, "export class Baz"), ShouldEqual, 1)
		})
	})

	Convey("数据类必须有构造函数", t, func() {
		_, err := index(File{Name: "a.js", Code: "class D extends Data {\n  m() {}\n}"})
		So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
	})

	Convey("访问器与普通方法重名", t, func() {
		_, err := index(File{Name: "a.js", Code: "class D extends Message {\n  get x() {}\n  x() {}\n}"})
		So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
	})

	Convey("getter 重复", t, func() {
		_, err := index(File{Name: "a.js", Code: "class D extends Message {\n  get x() {}\n  get x() {}\n}"})
		So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
	})
}

func TestIndexAcrossFiles(t *testing.T) {
	Convey("跨文件规则", t, func() {
		Convey("类名全局唯一", func() {
			_, err := index(File{Name: "a.js", Code: "class A {}"}, File{Name: "b.js", Code: "\n\nclass A {}"})
			e, ok := errs.As(err)
			So(ok, ShouldBeTrue)
			So(e.File, ShouldEqual, "b.js")
			So(e.Line, ShouldEqual, 3)
		})

		Convey("函数名全局唯一", func() {
			_, err := index(File{Name: "a.js", Code: "function f() {}"}, File{Name: "b.js", Code: "function f() {}"})
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
		})

		Convey("去掉扩展名后文件名重复", func() {
			_, err := index(File{Name: "lib/a.js", Code: "1"}, File{Name: "lib/a.mjs", Code: "2"})
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)

			res, err := index(File{Name: "lib/a.js", Code: "1"}, File{Name: "src/a.js", Code: "2"})
			So(err, ShouldBeNil)
			So(res.Index.Files[1], ShouldResemble, FileEntry{FileID: 2, FileName: "src/a.js"})
		})

		Convey("禁止引用平台内部标识", func() {
			_, err := index(File{Name: "a.js", Code: "const x = globalThis.__internal_worker_state;"})
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
		})

		Convey("语法错误带行号", func() {
			_, err := index(File{Name: "bad.js", Code: "class A {\n  m( {\n}\n"})
			e, ok := errs.As(err)
			So(ok, ShouldBeTrue)
			So(e.Code, ShouldEqual, errs.CodeParseError)
			So(e.File, ShouldEqual, "bad.js")
			So(e.Line, ShouldBeGreaterThan, 0)
		})

		Convey("不支持的语言", func() {
			_, err := NewIndexerWithOptions(nil).Index(&Input{Language: "python", Files: []File{{Name: "a.py", Code: "x"}}})
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidRequest)
		})

		Convey("没有文件", func() {
			_, err := NewIndexerWithOptions(nil).Index(&Input{})
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidRequest)
		})
	})
}

func TestClassIDContinuity(t *testing.T) {
	Convey("已有映射中的类保留 ID，新类继续计数", t, func() {
		code := `
class A extends Service { constructor(c) { super(c); } m() {} }
class C extends Data { constructor() { super(); } }
`
		in := &Input{
			WorkerID: 1, WorkerVersion: 3, WorkerName: "alpha",
			Files:         []File{{Name: "a.js", Code: code}},
			ClassMappings: map[string]uint16{"A": 1, "B": 2},
			LastClassID:   2,
		}
		res, err := NewIndexerWithOptions(nil).Index(in)
		So(err, ShouldBeNil)
		So(CreateClassMappings(res.Index), ShouldResemble, []ClassMapping{{ClassName: "A", ClassID: 1}, {ClassName: "C", ClassID: 3}})
		So(res.RetiredClasses, ShouldResemble, []string{"B"})

		Convey("相同输入结果确定", func() {
			again, err := NewIndexerWithOptions(nil).Index(in)
			So(err, ShouldBeNil)
			So(again.Index, ShouldResemble, res.Index)
		})
	})

	Convey("lastClassId 落后于映射时不会复用 ID", t, func() {
		res, err := NewIndexerWithOptions(nil).Index(&Input{
			Files:         []File{{Name: "a.js", Code: "class N extends Message {}"}},
			ClassMappings: map[string]uint16{"Old": 7},
			LastClassID:   2,
		})
		So(err, ShouldBeNil)
		So(res.Index.Messages[0].ClassID, ShouldEqual, 8)
	})

	Convey("ID 空间耗尽", t, func() {
		_, err := NewIndexerWithOptions(nil).Index(&Input{
			Files:       []File{{Name: "a.js", Code: "class N extends Message {}"}},
			LastClassID: 65535,
		})
		So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
	})
}

func TestIndexModuleSyntax(t *testing.T) {
	Convey("块之后的正则字面量不影响后续的 export", t, func() {
		code := "const s = \"x\";\nif (s) {}\n/{/.test(s);\n\nexport class A extends Data {\n    constructor(id) { super(id); }\n}\n"
		res, err := index(File{Name: "a.js", Code: code})
		So(err, ShouldBeNil)
		So(res.Index.Data, ShouldHaveLength, 1)
		So(res.Index.Data[0].Name, ShouldEqual, "A")
		So(res.Index.Data[0].SourceCode, ShouldStartWith, "class A extends Data {")
		So(res.Directives, ShouldBeEmpty)
	})

	Convey("匿名默认导出函数不登记，具名导出函数的源码不含 export", t, func() {
		res, err := index(
			File{Name: "a.js", Code: "export default function () { return 1; }\nexport function named(a) { return a; }\n"},
			File{Name: "b.js", Code: "export default /* main */ function main(x) {}\n"},
		)
		So(err, ShouldBeNil)
		So(res.Index.Functions, ShouldResemble, []FunctionEntry{
			{Name: "named", ReturnType: "any", Arguments: []Argument{{Name: "a", Type: "any"}}, SourceCode: "function named(a) { return a; }"},
			{Name: "main", ReturnType: "any", Arguments: []Argument{{Name: "x", Type: "any"}}, SourceCode: "function main(x) {}"},
		})
	})

	Convey("匿名的托管类被拒绝", t, func() {
		_, err := index(File{Name: "a.js", Code: "\nexport default class extends Service {\n    constructor(x) { super(x); }\n    m() {}\n}\n"})
		e, ok := errs.As(err)
		So(ok, ShouldBeTrue)
		So(e.Code, ShouldEqual, errs.CodeInvalidWorkerCode)
		So(e.Line, ShouldEqual, 2)

		res, err := index(File{Name: "b.js", Code: "export default class { run() {} }\n"})
		So(err, ShouldBeNil)
		So(res.Index.Classes, ShouldBeEmpty)
	})

	Convey("导出列表和默认导出的本地名称视为已导出，转导出不算", t, func() {
		code := "class P extends Message {}\nclass Q extends Message {}\nclass R extends Message {}\nexport { P as Pong };\nexport default Q;\nexport { R } from './r.js';\n"
		res, err := index(File{Name: "a.js", Code: code})
		So(err, ShouldBeNil)
		So(res.Directives, ShouldHaveLength, 1)
		out := res.Directives[0].Apply().Code
		So(out, ShouldContainSubstring, "\nclass P extends Message")
		So(out, ShouldContainSubstring, "\nclass Q extends Message")
		So(out, ShouldContainSubstring, "export class R extends Message")
	})

	Convey("各种 import 形式中的运行时模块路径都被改写", t, func() {
		code := "import \"../worker-runtime/polyfill.js\";\n" +
			"import * as rt /* \"x\" */ from '../../worker-runtime/index.js';\n" +
			"import { helper } from './helper.js';\n" +
			"export { Data } from \"../worker-runtime/index.js\";\n" +
			"const lazy = import(\"../worker-runtime/lazy.js\");\n"
		res, err := index(File{Name: "a.js", Code: code})
		So(err, ShouldBeNil)
		So(res.Directives, ShouldHaveLength, 1)
		So(res.Directives[0].Apply().Code, ShouldEqual, "import \"worker-runtime\";\n"+
			"import * as rt /* \"x\" */ from \"worker-runtime\";\n"+
			"import { helper } from './helper.js';\n"+
			"export { Data } from \"worker-runtime\";\n"+
			"const lazy = import(\"../worker-runtime/lazy.js\");\n")
	})

	Convey("import 只能出现在顶层", t, func() {
		_, err := index(File{Name: "a.js", Code: "function f() {\n  import x from './x.js';\n}\n"})
		So(errs.CodeOf(err), ShouldEqual, errs.CodeParseError)
	})
}
