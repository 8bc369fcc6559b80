package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.txt", true},
		{"b.MD", true},
		{"c.mdx", true},
		{"d.pdf", false},
		{"README", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupported(tt.name))
		})
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.md"), []byte("# B\nbody"))
	writeFile(t, filepath.Join(root, "sub", "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "c.pdf"), []byte("%PDF"))
	writeFile(t, filepath.Join(root, "bad.txt"), []byte{0xff, 0xfe, 0x00})

	res, err := LoadDir(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, res.Documents, 2)
	assert.Equal(t, filepath.Join(root, "b.md"), res.Documents[0].Source)
	assert.Equal(t, filepath.Join(root, "sub", "a.txt"), res.Documents[1].Source)
	assert.Equal(t, "hello", res.Documents[1].Text)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, filepath.Join(root, "bad.txt"), res.Failures[0].Source)
	assert.ErrorIs(t, res.Failures[0].Err, chunker.ErrInvalidEncoding)
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadDir_Canceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadDir(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadBytes(t *testing.T) {
	doc, err := LoadBytes("kb/x.md", []byte("内容"))
	require.NoError(t, err)
	assert.Equal(t, chunker.Document{Source: "kb/x.md", Text: "内容"}, doc)

	_, err = LoadBytes("kb/y.md", []byte{0xc3, 0x28})
	assert.ErrorIs(t, err, chunker.ErrInvalidEncoding)
}
