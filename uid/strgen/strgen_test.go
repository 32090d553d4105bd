package strgen

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatlonely/workerplane/ref"
)

func TestUUIDGenerator(t *testing.T) {
	tests := []struct {
		name    string
		options *UUIDOptions
		length  int
	}{
		{name: "default", options: nil, length: 32},
		{name: "v7 without hyphens", options: &UUIDOptions{Version: "v7"}, length: 32},
		{name: "v4 with hyphens", options: &UUIDOptions{Version: "v4", WithHyphens: true}, length: 36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewUUIDGeneratorWithOptions(tt.options)
			a, b := g.Generate(), g.Generate()
			assert.Len(t, a, tt.length)
			assert.NotEqual(t, a, b)
			if tt.length == 36 {
				_, err := uuid.Parse(a)
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyGenerator(t *testing.T) {
	g := NewKeyGeneratorWithOptions(nil)
	key := g.Generate()
	buf, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, buf, 192)
	assert.NotEqual(t, key, g.Generate())

	assert.Len(t, NewKeyGeneratorWithOptions(&KeyOptions{Bytes: 30}).Generate(), 40)
}

func TestNewStrGeneratorWithOptions(t *testing.T) {
	g, err := NewStrGeneratorWithOptions(&ref.TypeOptions{
		Namespace: "github.com/hatlonely/workerplane/uid/strgen",
		Type:      "KeyGenerator",
		Options:   &KeyOptions{Bytes: 24},
	})
	require.NoError(t, err)
	assert.Len(t, g.Generate(), 32)
}
