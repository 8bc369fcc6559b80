package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func TestAnnotate_IndexContiguity(t *testing.T) {
	cfg := Config{ChunkSize: 30, ChunkOverlap: 5, Method: MethodAuto}
	chunks, err := Segment([]Document{{Source: "a.md", Text: "# H\n\n" + uniqueWords(40)}}, cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	out := Annotate(chunks, cfg)
	require.Len(t, out, len(chunks))
	for i, c := range out {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, len([]rune(c.Content)), c.Metadata.ChunkChars)
		assert.Equal(t, MethodAuto, c.Metadata.ChunkingMethod)
		assert.Equal(t, 30, c.Metadata.ChunkSize)
		assert.Equal(t, 5, c.Metadata.ChunkOverlap)
		assert.Equal(t, "H", c.Metadata.H1, "标题上下文应保留")
		assert.Equal(t, "a.md", c.Metadata.Source)
	}
}

func TestAnnotate_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	chunks, err := ChunkDocuments([]Document{{Source: "a.txt", Text: "alpha beta"}}, cfg, Options{
		IncludeSpans: true,
	})
	require.NoError(t, err)

	once := Annotate(chunks, cfg)
	twice := Annotate(once, cfg)
	assert.Equal(t, once, twice)
	require.True(t, twice[0].Metadata.HasSpan(), "区间应保留")
}

func TestAnnotate_DoesNotMutateInput(t *testing.T) {
	in := []Chunk{{Content: "知识", Metadata: Metadata{Source: "z.txt", ChunkIndex: 7}}}
	out := Annotate(in, DefaultConfig())

	assert.Equal(t, 7, in[0].Metadata.ChunkIndex)
	assert.Equal(t, 0, out[0].Metadata.ChunkIndex)
	assert.Equal(t, 2, out[0].Metadata.ChunkChars)
}

func TestAnnotator_TokenCounter(t *testing.T) {
	out := Annotator{Tokens: wordCounter{}}.Annotate([]Chunk{{Content: "one two three"}}, DefaultConfig())
	assert.Equal(t, 3, out[0].Metadata.TokenCount)

	chunks, err := ChunkDocuments([]Document{{Source: "a.txt", Text: "one two"}}, DefaultConfig(), Options{
		IncludePreviewMetadata: true,
		TokenCounter:           wordCounter{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, chunks[0].Metadata.TokenCount)
}
