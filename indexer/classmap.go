package indexer

import (
	"regexp"
	"sort"

	"github.com/hatlonely/workerplane/errs"
)

// ClassMapping 类名与 classId 的对应关系
type ClassMapping struct {
	ClassName string `msgpack:"className" json:"className"`
	ClassID   uint16 `msgpack:"classId" json:"classId"`
}

var classNamePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ParseClassMappings 校验客户端提交的映射并转换为 map
func ParseClassMappings(mappings []ClassMapping) (map[string]uint16, error) {
	result := make(map[string]uint16, len(mappings))
	ids := make(map[uint16]string, len(mappings))
	for _, m := range mappings {
		if m.ClassID == 0 {
			return nil, errs.Validation(errs.CodeInvalidClassMapping, "class %q has invalid class id 0", m.ClassName)
		}
		if !classNamePattern.MatchString(m.ClassName) {
			return nil, errs.Validation(errs.CodeInvalidClassMapping, "invalid class name %q", m.ClassName)
		}
		if _, ok := result[m.ClassName]; ok {
			return nil, errs.Validation(errs.CodeInvalidClassMapping, "duplicate class name %q", m.ClassName)
		}
		if other, ok := ids[m.ClassID]; ok {
			return nil, errs.Validation(errs.CodeInvalidClassMapping, "class id %d is used by both %q and %q", m.ClassID, other, m.ClassName)
		}
		result[m.ClassName] = m.ClassID
		ids[m.ClassID] = m.ClassName
	}
	return result, nil
}

// CreateClassMappings 从索引生成权威映射，按 classId 排序
func CreateClassMappings(index *WorkerIndex) []ClassMapping {
	mappings := make([]ClassMapping, 0, len(index.Services)+len(index.Data)+len(index.Messages))
	for _, s := range index.Services {
		mappings = append(mappings, ClassMapping{ClassName: s.Name, ClassID: s.ClassID})
	}
	for _, d := range index.Data {
		mappings = append(mappings, ClassMapping{ClassName: d.Name, ClassID: d.ClassID})
	}
	for _, m := range index.Messages {
		mappings = append(mappings, ClassMapping{ClassName: m.Name, ClassID: m.ClassID})
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].ClassID < mappings[j].ClassID
	})
	return mappings
}

// classIDAllocator 已有映射中的类保留原 ID，新类从 lastClassID+1 开始分配
type classIDAllocator struct {
	last     uint16
	existing map[string]uint16
	used     map[string]bool
}

func newClassIDAllocator(existing map[string]uint16, lastClassID uint16) *classIDAllocator {
	if existing == nil {
		existing = map[string]uint16{}
	}
	// 客户端的计数器落后于已有映射时以映射为准，保证 ID 不被复用
	for _, id := range existing {
		lastClassID = maxID(lastClassID, id)
	}
	return &classIDAllocator{last: lastClassID, existing: existing, used: map[string]bool{}}
}

func (a *classIDAllocator) allocate(name string) (uint16, error) {
	a.used[name] = true
	if id, ok := a.existing[name]; ok {
		return id, nil
	}
	if a.last == ^uint16(0) {
		return 0, errs.Validation(errs.CodeInvalidWorkerCode, "class id space exhausted, cannot allocate id for %q", name)
	}
	a.last++
	return a.last, nil
}

// missing 返回映射中存在但代码中没有出现的类
func (a *classIDAllocator) missing() []string {
	var names []string
	for name := range a.existing {
		if !a.used[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
