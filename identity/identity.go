package identity

import (
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/indexer"
)

// IdentityClassMapping 服务端确认的类名、classId 与客户端稳定标签
type IdentityClassMapping struct {
	ClassName string `json:"className"`
	ClassID   uint16 `json:"classId"`
	Tag       string `json:"tag"`
}

// ClassTag 本地配置中类名到标签的映射，开发者重命名类时只改 Name
type ClassTag struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// WorkerIdentity 客户端保存的 worker 身份
// 首次部署前只有 AdminKey，部署成功后其余字段全部存在
type WorkerIdentity struct {
	AdminKey              string                 `json:"adminKey"`
	Checksum              *uint32                `json:"checksum,omitempty"`
	WorkerID              *uint64                `json:"workerId,omitempty,string"`
	WorkerVersion         *uint64                `json:"workerVersion,omitempty,string"`
	IdentityClassMappings []IdentityClassMapping `json:"identityClassMappings,omitempty"`
	LastClassID           *uint16                `json:"lastClassId,omitempty"`
}

// Deployed worker 是否已经部署过
func (id *WorkerIdentity) Deployed() bool {
	return id.WorkerID != nil
}

func (id *WorkerIdentity) Validate() error {
	if id.AdminKey == "" {
		return errs.Validation(errs.CodeInvalidRequest, "worker identity has no admin key")
	}
	if id.Checksum == nil && id.WorkerID == nil && id.WorkerVersion == nil {
		return nil
	}
	if id.Checksum == nil || id.WorkerID == nil || id.WorkerVersion == nil || id.IdentityClassMappings == nil || id.LastClassID == nil {
		return errs.Validation(errs.CodeInvalidRequest, "worker identity is incomplete, checksum, workerId, workerVersion, identityClassMappings and lastClassId must be set together")
	}
	return nil
}

// ResolveClassMappings 用本地类名标签与服务端标签映射求出本次提交的类名到 classId 映射
func ResolveClassMappings(classes []ClassTag, id *WorkerIdentity) ([]indexer.ClassMapping, error) {
	byTag := map[string]uint16{}
	if id != nil {
		for _, m := range id.IdentityClassMappings {
			byTag[m.Tag] = m.ClassID
		}
	}

	mappings := make([]indexer.ClassMapping, 0, len(classes))
	for _, c := range classes {
		classID, ok := byTag[c.Tag]
		if !ok || c.Tag == "" {
			return nil, errs.Validation(errs.CodeUnknownClassTag,
				"class %q has an unknown tag, to add a new class remove its entry from the worker config and deploy, the mapping is updated automatically", c.Name)
		}
		mappings = append(mappings, indexer.ClassMapping{ClassName: c.Name, ClassID: classID})
	}
	return mappings, nil
}

// Merge 根据服务端返回的映射生成新的本地标签表和身份映射
// classId 未变的类沿用原标签，新 classId 生成新标签
func Merge(prev *WorkerIdentity, mappings []indexer.ClassMapping, newTag func() string) ([]ClassTag, []IdentityClassMapping, uint16) {
	tags := map[uint16]string{}
	var lastClassID uint16
	if prev != nil {
		for _, m := range prev.IdentityClassMappings {
			tags[m.ClassID] = m.Tag
		}
		if prev.LastClassID != nil {
			lastClassID = *prev.LastClassID
		}
	}

	classes := make([]ClassTag, 0, len(mappings))
	identities := make([]IdentityClassMapping, 0, len(mappings))
	for _, m := range mappings {
		tag, ok := tags[m.ClassID]
		if !ok {
			tag = newTag()
		}
		classes = append(classes, ClassTag{Name: m.ClassName, Tag: tag})
		identities = append(identities, IdentityClassMapping{ClassName: m.ClassName, ClassID: m.ClassID, Tag: tag})
		lastClassID = max(lastClassID, m.ClassID)
	}
	return classes, identities, lastClassID
}
