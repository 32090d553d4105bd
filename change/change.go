package change

import (
	"hash/crc32"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/identity"
	"github.com/hatlonely/workerplane/indexer"
)

// RuntimeDirName 编译输出中随附的运行时目录，不属于用户代码
const RuntimeDirName = "worker-runtime"

// Checksum 依次对 worker 名称和按路径排序后每个文件的路径与内容做 CRC-32
func Checksum(workerName string, files []indexer.File) uint32 {
	sorted := make([]indexer.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	value := crc32.ChecksumIEEE([]byte(workerName))
	for _, f := range sorted {
		value = crc32.Update(value, crc32.IEEETable, []byte(f.Name))
		value = crc32.Update(value, crc32.IEEETable, []byte(f.Code))
	}
	return value
}

// ReadWorkerFiles 递归读取编译输出目录，exts 为空时读取所有文件
func ReadWorkerFiles(dir string, exts ...string) ([]indexer.File, error) {
	var files []indexer.File
	baseNames := map[string]string{}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && d.Name() == RuntimeDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if len(exts) > 0 && !slices.Contains(exts, filepath.Ext(p)) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return errors.Wrapf(err, "filepath.Rel %s failed", p)
		}
		name := filepath.ToSlash(rel)
		baseName := strings.TrimSuffix(name, path.Ext(name))
		if other, ok := baseNames[baseName]; ok {
			return errs.Validation(errs.CodeInvalidWorkerCode,
				"duplicate file name %s and %s, worker files must have unique base names", other, name).At(name, 0)
		}
		baseNames[baseName] = name

		buf, err := os.ReadFile(p)
		if err != nil {
			return errors.Wrapf(err, "read %s failed", p)
		}
		if strings.TrimSpace(string(buf)) == "" {
			return errs.Validation(errs.CodeInvalidWorkerCode, "unable to deploy empty code file").At(name, 0)
		}
		files = append(files, indexer.File{Name: name, Code: string(buf)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// HasClassMappingChanges 比较类名集合，worker.json 的变化不影响 checksum，需要单独比较
func HasClassMappingChanges(prev []identity.IdentityClassMapping, current []indexer.ClassMapping) bool {
	if len(prev) != len(current) {
		return true
	}
	names := make(map[string]bool, len(prev))
	for _, m := range prev {
		names[m.ClassName] = true
	}
	for _, m := range current {
		if !names[m.ClassName] {
			return true
		}
	}
	return false
}

// ShouldDeploy 只有已部署过、checksum 相同且类名集合没有变化时才跳过部署
func ShouldDeploy(id *identity.WorkerIdentity, checksum uint32, current []indexer.ClassMapping) bool {
	if id == nil || id.Checksum == nil || *id.Checksum != checksum {
		return true
	}
	return HasClassMappingChanges(id.IdentityClassMappings, current)
}
