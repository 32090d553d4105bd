package decoder

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type TomlDecoder struct{}

func (d *TomlDecoder) Decode(data []byte) (any, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "toml.Unmarshal failed")
	}
	return result, nil
}
