package indexer

import (
	"testing"

	"github.com/grafana/sobek/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecifierRange(t *testing.T) {
	for _, c := range []struct {
		name string
		code string
		want string
	}{
		{name: "双引号", code: `import { a } from "./a.js";`, want: `"./a.js"`},
		{name: "单引号", code: `import a from './a.js'`, want: `'./a.js'`},
		{name: "跳过注释中的引号", code: "import a /* 'x' */ // \"y\"\n from './a.js'", want: `'./a.js'`},
		{name: "转义", code: `import "./a\".js"`, want: `"./a\".js"`},
	} {
		t.Run(c.name, func(t *testing.T) {
			start, end, ok := specifierRange(c.code, 0, len(c.code))
			require.True(t, ok)
			assert.Equal(t, c.want, c.code[start:end])
		})
	}

	t.Run("范围内没有字符串", func(t *testing.T) {
		_, _, ok := specifierRange(`export { a };`, 0, 13)
		assert.False(t, ok)
	})

	t.Run("未闭合的字符串", func(t *testing.T) {
		_, _, ok := specifierRange(`import "./a.js`, 0, 14)
		assert.False(t, ok)
	})
}

func TestSkipKeyword(t *testing.T) {
	code := "export  default /* c */\n function f() {}"
	assert.Equal(t, len("export  default /* c */\n "), skipKeyword(code, len("export"), "default"))

	code = "export // c\nfunction f() {}"
	assert.Equal(t, len("export // c\n"), skipKeyword(code, len("export"), "default"))

	assert.Equal(t, len("x "), skipTrivia("x ", 1))
}

func TestExportedNames(t *testing.T) {
	program, err := parser.ParseFile(nil, "a.js", "class A {}\nclass B {}\nexport { A, B as C };\nexport { D } from './d.js';\nexport * from './e.js';\nexport default E;\nexport class F {}\n", 0, parser.IsModule)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A": true, "B": true, "E": true}, exportedNames(program.Body))
}
