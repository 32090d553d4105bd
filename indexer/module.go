package indexer

import (
	"strings"

	"github.com/grafana/sobek/ast"
)

// skipTrivia 跳过空白和注释，返回下一个词法单元的起始偏移
func skipTrivia(code string, pos int) int {
	for pos < len(code) {
		switch c := code[pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			pos++
		case strings.HasPrefix(code[pos:], "//"):
			if i := strings.IndexByte(code[pos:], '\n'); i >= 0 {
				pos += i + 1
			} else {
				pos = len(code)
			}
		case strings.HasPrefix(code[pos:], "/*"):
			if i := strings.Index(code[pos+2:], "*/"); i >= 0 {
				pos += i + 4
			} else {
				pos = len(code)
			}
		case strings.HasPrefix(code[pos:], "\u00a0"):
			pos += len("\u00a0")
		default:
			return pos
		}
	}
	return pos
}

// skipKeyword 跳过 pos 之后的空白注释和可选的关键字
func skipKeyword(code string, pos int, keyword string) int {
	pos = skipTrivia(code, pos)
	if strings.HasPrefix(code[pos:], keyword) {
		return skipTrivia(code, pos+len(keyword))
	}
	return pos
}

// specifierRange 返回 import/export 语句 [start, end) 中第一个字符串字面量（含引号）的位置
// 语法树不记录模块路径的位置，语句已通过解析，其中不会出现正则和模板字符串
func specifierRange(code string, start, end int) (int, int, bool) {
	end = min(end, len(code))
	for pos := start; pos < end; {
		pos = skipTrivia(code, pos)
		if pos >= end {
			break
		}
		quote := code[pos]
		if quote != '"' && quote != '\'' {
			pos++
			continue
		}
		for i := pos + 1; i < end; i++ {
			switch code[i] {
			case '\\':
				i++
			case quote:
				return pos, i + 1, true
			}
		}
		break
	}
	return 0, 0, false
}

// statementEnd 顶层语句的结束偏移取下一条语句的起始位置
func statementEnd(fw *fileWalker, body []ast.Statement, i int) int {
	if i+1 < len(body) {
		return fw.offset(body[i+1].Idx0())
	}
	return len(fw.file.Code)
}

// exportedNames 收集 export { a, b as c } 和 export default a 中的本地名称，转导出的名称不属于本文件
func exportedNames(body []ast.Statement) map[string]bool {
	names := map[string]bool{}
	for _, stmt := range body {
		exp, ok := stmt.(*ast.ExportDeclaration)
		if !ok {
			continue
		}
		switch {
		case exp.NamedExports != nil && exp.FromClause == nil:
			for _, spec := range exp.NamedExports.ExportsList {
				names[spec.IdentifierName.String()] = true
			}
		case exp.IsDefault && exp.AssignExpression != nil:
			if ident, ok := exp.AssignExpression.(*ast.Identifier); ok {
				names[ident.Name.String()] = true
			}
		}
	}
	return names
}
