package indexer

import (
	"sort"
	"strings"
)

// Instruction 对源码 [Start, End) 的替换，Start == End 时为插入，Text 为空时为删除
type Instruction struct {
	Start int
	End   int
	Text  string
}

func Insert(at int, text string) Instruction {
	return Instruction{Start: at, End: at, Text: text}
}

func Replace(start, end int, text string) Instruction {
	return Instruction{Start: start, End: end, Text: text}
}

// Directive 一个文件的预编译指令
type Directive struct {
	File         File
	Instructions []Instruction
}

// Apply 按偏移从小到大应用所有指令，偏移均基于原始代码
func (d Directive) Apply() File {
	if len(d.Instructions) == 0 {
		return d.File
	}

	instructions := make([]Instruction, len(d.Instructions))
	copy(instructions, d.Instructions)
	sort.SliceStable(instructions, func(i, j int) bool {
		return instructions[i].Start < instructions[j].Start
	})

	code := d.File.Code
	var sb strings.Builder
	sb.Grow(len(code))
	pos := 0
	for _, ins := range instructions {
		if ins.Start < pos {
			continue
		}
		sb.WriteString(code[pos:ins.Start])
		sb.WriteString(ins.Text)
		pos = ins.End
	}
	sb.WriteString(code[pos:])

	return File{Name: d.File.Name, Code: sb.String()}
}

// ApplyAll 对所有文件应用指令，没有指令的文件原样返回
func ApplyAll(files []File, directives []Directive) []File {
	byName := make(map[string]Directive, len(directives))
	for _, d := range directives {
		byName[d.File.Name] = d
	}
	result := make([]File, 0, len(files))
	for _, f := range files {
		if d, ok := byName[f.Name]; ok {
			result = append(result, d.Apply())
		} else {
			result = append(result, f)
		}
	}
	return result
}
