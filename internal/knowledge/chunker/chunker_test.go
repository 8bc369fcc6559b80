package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"默认配置", DefaultConfig(), false},
		{"重叠为 0", Config{ChunkSize: 10, ChunkOverlap: 0, Method: MethodRecursiveOnly}, false},
		{"重叠等于大小", Config{ChunkSize: 800, ChunkOverlap: 800, Method: MethodAuto}, true},
		{"重叠大于大小", Config{ChunkSize: 100, ChunkOverlap: 200, Method: MethodAuto}, true},
		{"大小为 0", Config{ChunkSize: 0, ChunkOverlap: 0, Method: MethodAuto}, true},
		{"负重叠", Config{ChunkSize: 10, ChunkOverlap: -1, Method: MethodAuto}, true},
		{"未知方式", Config{ChunkSize: 10, ChunkOverlap: 1, Method: "semantic"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 120, cfg.ChunkOverlap)
	assert.Equal(t, MethodAuto, cfg.Method)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodAuto, m)

	m, err = ParseMethod(" Recursive_Only ")
	require.NoError(t, err)
	assert.Equal(t, MethodRecursiveOnly, m)

	_, err = ParseMethod("tokens")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChunkDocuments_InvalidConfigBeforeWork(t *testing.T) {
	docs := []Document{{Source: "a.txt", Text: "hello"}}
	chunks, err := ChunkDocuments(docs, Config{ChunkSize: 800, ChunkOverlap: 800, Method: MethodAuto}, Options{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.True(t, IsConfigError(err))
	assert.Nil(t, chunks)
}

func TestChunkDocuments_SpansRequireSingleDocument(t *testing.T) {
	docs := []Document{
		{Source: "a.txt", Text: "alpha"},
		{Source: "b.txt", Text: "beta"},
	}
	_, err := ChunkDocuments(docs, DefaultConfig(), Options{IncludeSpans: true})
	assert.ErrorIs(t, err, ErrMultiDocumentSpans)
}

func TestChunkDocuments_MultipleDocumentsKeepSource(t *testing.T) {
	docs := []Document{
		{Source: "a.txt", Text: "alpha beta gamma delta"},
		{Source: "b.md", Text: "# B\n\nepsilon zeta"},
	}
	cfg := Config{ChunkSize: 12, ChunkOverlap: 0, Method: MethodRecursiveOnly}
	chunks, err := ChunkDocuments(docs, cfg, Options{IncludePreviewMetadata: true})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	seenB := false
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		if c.Metadata.Source == "b.md" {
			seenB = true
			// recursive_only 不解析标题
			assert.Empty(t, c.Metadata.H1)
		} else {
			assert.False(t, seenB, "分块顺序应与文档顺序一致")
			assert.Equal(t, "a.txt", c.Metadata.Source)
		}
	}
	assert.True(t, seenB)
}

func TestChunkFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	text := "# Intro\n\nFirst paragraph.\n\n## Details\n\nSecond paragraph."
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	chunks, original, err := ChunkFile(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, text, original)
	require.Len(t, chunks, 2)

	assert.Equal(t, "First paragraph.", chunks[0].Content)
	assert.Equal(t, "Intro", chunks[0].Metadata.H1)
	assert.Equal(t, "Details", chunks[1].Metadata.H2)
	for _, c := range chunks {
		assert.Equal(t, path, c.Metadata.Source)
		assert.Equal(t, MethodAuto, c.Metadata.ChunkingMethod)
		require.True(t, c.Metadata.HasSpan())
		assert.Equal(t, c.Content, original[*c.Metadata.SpanStart:*c.Metadata.SpanEnd])
	}
}

func TestChunkFile_InvalidEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 'a'}, 0o644))

	_, _, err := ChunkFile(path, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestChunkFile_Missing(t *testing.T) {
	_, _, err := ChunkFile(filepath.Join(t.TempDir(), "missing.txt"), DefaultConfig())
	assert.Error(t, err)
}

func TestMetadataToMap(t *testing.T) {
	start, end := 3, 9
	md := Metadata{
		Source:         "a.md",
		H1:             "Title",
		ChunkIndex:     2,
		ChunkChars:     6,
		ChunkingMethod: MethodAuto,
		ChunkSize:      800,
		ChunkOverlap:   120,
		SpanStart:      &start,
		SpanEnd:        &end,
	}
	m := md.ToMap()
	assert.Equal(t, "a.md", m["source"])
	assert.Equal(t, "Title", m["h1"])
	assert.NotContains(t, m, "h2")
	assert.Equal(t, 2, m["chunk_index"])
	assert.Equal(t, "auto", m["chunking_method"])
	assert.Equal(t, 3, m["span_start"])
	assert.Equal(t, 9, m["span_end"])

	assert.NotContains(t, Metadata{Source: "x"}.ToMap(), "span_start")
}

// uniqueWords 生成互不相同的单词序列，避免重叠判断被重复内容干扰
func uniqueWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	return strings.Join(words, " ")
}

func nonSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// isSubsequence 判断 sub 是否按顺序出现在 s 中
func isSubsequence(sub, s string) bool {
	rs := []rune(s)
	j := 0
	for _, r := range sub {
		for j < len(rs) && rs[j] != r {
			j++
		}
		if j == len(rs) {
			return false
		}
		j++
	}
	return true
}
