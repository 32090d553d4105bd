package decoder

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Decoder 把配置文件内容解码为 map/slice 组成的通用结构
type Decoder interface {
	Decode(data []byte) (any, error)
}

// NewDecoderByFilename 根据扩展名选择解码器
func NewDecoderByFilename(filename string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return &YamlDecoder{}, nil
	case ".json":
		return &JsonDecoder{}, nil
	case ".toml":
		return &TomlDecoder{}, nil
	case ".ini":
		return &IniDecoder{}, nil
	default:
		return nil, errors.Errorf("unsupported config format: %s", filename)
	}
}
