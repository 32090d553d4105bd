package strgen

import (
	"encoding/hex"

	"github.com/google/uuid"
)

type UUIDOptions struct {
	Version string `cfg:"version" def:"v4" validate:"omitempty,oneof=v4 v7"`
	// 是否包含连字符，默认不包含
	WithHyphens bool `cfg:"withHyphens"`
}

// UUIDGenerator 用于生成类的稳定标签
type UUIDGenerator struct {
	version     string
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{}
	}
	return &UUIDGenerator{version: options.Version, withHyphens: options.WithHyphens}
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	if g.version == "v7" {
		u = uuid.Must(uuid.NewV7())
	} else {
		u = uuid.New()
	}

	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}
