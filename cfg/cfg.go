package cfg

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/cfg/decoder"
	"github.com/hatlonely/workerplane/cfg/storage"
)

// Config 从文件加载、环境变量覆盖的配置
type Config struct {
	storage *storage.MapStorage
}

// NewConfig 加载配置文件，不做环境变量覆盖
func NewConfig(filename string) (*Config, error) {
	return NewConfigWithPrefix(filename, "")
}

// NewConfigWithPrefix 加载配置文件，PREFIX_A_B 形式的环境变量覆盖 a.b
func NewConfigWithPrefix(filename string, envPrefix string) (*Config, error) {
	var data any = map[string]any{}
	if filename != "" {
		buf, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s failed", filename)
		}
		d, err := decoder.NewDecoderByFilename(filename)
		if err != nil {
			return nil, err
		}
		if data, err = d.Decode(buf); err != nil {
			return nil, errors.WithMessagef(err, "decode config %s failed", filename)
		}
	}

	s := storage.NewMapStorage(data)
	if envPrefix != "" {
		if err := applyEnv(s, envPrefix, os.Environ()); err != nil {
			return nil, err
		}
	}
	return &Config{storage: s}, nil
}

// NewConfigWithData 直接使用已解码的数据
func NewConfigWithData(data map[string]any) *Config {
	return &Config{storage: storage.NewMapStorage(data)}
}

func applyEnv(s *storage.MapStorage, prefix string, environ []string) error {
	prefix = strings.ToUpper(prefix) + "_"
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, prefix)), "_", ".")
		if err := s.Set(key, v); err != nil {
			return errors.WithMessagef(err, "apply env %s failed", k)
		}
	}
	return nil
}

func (c *Config) Sub(key string) *storage.MapStorage {
	return c.storage.Sub(key)
}

func (c *Config) ConvertTo(object any) error {
	return c.storage.ConvertTo(object)
}
