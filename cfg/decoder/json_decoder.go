package decoder

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type JsonDecoder struct{}

func (d *JsonDecoder) Decode(data []byte) (any, error) {
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal failed")
	}
	return result, nil
}
