package identity

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/errs"
)

const (
	ConfigFileName = "worker.json"
	ConfigVersion  = 1
)

var workerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9\-_]{2,49}$`)

// ValidWorkerName 3 到 50 个字符，小写字母开头，只包含小写字母、数字、- 和 _
func ValidWorkerName(name string) bool {
	return workerNamePattern.MatchString(name)
}

// WorkerConfig 本地 worker.json，身份信息以 base64 编码的 JSON 保存
type WorkerConfig struct {
	Name     string
	Classes  []ClassTag
	Identity *WorkerIdentity
}

type workerConfigFile struct {
	ConfigVersion int        `json:"configVersion"`
	Name          string     `json:"name"`
	Classes       []ClassTag `json:"classes"`
	Identity      string     `json:"identity"`
}

func ConfigPath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

func LoadWorkerConfig(dir string) (*WorkerConfig, error) {
	filename := ConfigPath(dir)
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s failed", filename)
	}

	var f workerConfigFile
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, errs.Validation(errs.CodeInvalidRequest, "invalid or corrupt %s", filename).WithCause(err)
	}
	if f.ConfigVersion != ConfigVersion {
		return nil, errs.Validation(errs.CodeInvalidRequest, "unsupported config version %d in %s, expected %d", f.ConfigVersion, filename, ConfigVersion)
	}
	if !ValidWorkerName(f.Name) {
		return nil, errs.Validation(errs.CodeInvalidRequest, "invalid worker name %q in %s", f.Name, filename)
	}
	if f.Identity == "" {
		return nil, errs.Validation(errs.CodeInvalidRequest, "invalid worker identity in %s", filename)
	}

	raw, err := base64.StdEncoding.DecodeString(f.Identity)
	if err != nil {
		return nil, errs.Validation(errs.CodeInvalidRequest, "invalid worker identity in %s", filename).WithCause(err)
	}
	id := &WorkerIdentity{}
	if err := json.Unmarshal(raw, id); err != nil {
		return nil, errs.Validation(errs.CodeInvalidRequest, "invalid worker identity in %s", filename).WithCause(err)
	}
	if err := id.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "load %s failed", filename)
	}

	classes := f.Classes
	if classes == nil {
		classes = []ClassTag{}
	}
	return &WorkerConfig{Name: f.Name, Classes: classes, Identity: id}, nil
}

// Save 写入 dir/worker.json，先写临时文件再重命名
func (c *WorkerConfig) Save(dir string) error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(c.Identity)
	if err != nil {
		return errors.Wrap(err, "json.Marshal identity failed")
	}
	classes := c.Classes
	if classes == nil {
		classes = []ClassTag{}
	}
	buf, err := json.MarshalIndent(&workerConfigFile{
		ConfigVersion: ConfigVersion,
		Name:          c.Name,
		Classes:       classes,
		Identity:      base64.StdEncoding.EncodeToString(raw),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.MarshalIndent failed")
	}

	filename := ConfigPath(dir)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, append(buf, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "write %s failed", tmp)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return errors.Wrapf(err, "rename %s failed", tmp)
	}
	return nil
}
