package strgen

import (
	"crypto/rand"
	"encoding/base64"
)

type KeyOptions struct {
	// 随机字节数，编码后长度为 4*ceil(n/3)
	Bytes int `cfg:"bytes" def:"192" validate:"omitempty,min=16,max=1024"`
}

// KeyGenerator 生成 base64 编码的随机密钥，用作 worker 的 userKey
type KeyGenerator struct {
	bytes int
}

func NewKeyGeneratorWithOptions(options *KeyOptions) *KeyGenerator {
	n := 192
	if options != nil && options.Bytes > 0 {
		n = options.Bytes
	}
	return &KeyGenerator{bytes: n}
}

func (g *KeyGenerator) Generate() string {
	buf := make([]byte, g.bytes)
	// crypto/rand.Read 在支持的平台上不会返回错误
	_, _ = rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}
