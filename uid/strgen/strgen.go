package strgen

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/ref"
)

func init() {
	ref.MustRegisterT[UUIDGenerator](NewUUIDGeneratorWithOptions)
	ref.MustRegisterT[KeyGenerator](NewKeyGeneratorWithOptions)
}

// StrGenerator 生成字符串 ID
type StrGenerator interface {
	Generate() string
}

func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	g, err := ref.NewT[StrGenerator](options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewT failed")
	}
	return g, nil
}
