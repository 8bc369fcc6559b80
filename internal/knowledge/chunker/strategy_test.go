package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_MarkdownHeaders(t *testing.T) {
	doc := Document{
		Source: "guide.md",
		Text:   "# Title\n\nHello world. This is a test.\n\n## Sub\n\nMore text here.",
	}
	cfg := Config{ChunkSize: 20, ChunkOverlap: 5, Method: MethodAuto}

	chunks, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, "Title", chunks[0].Metadata.H1)
	assert.Empty(t, chunks[0].Metadata.H2)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "Title", last.Metadata.H1)
	assert.Equal(t, "Sub", last.Metadata.H2)
	assert.Equal(t, "More text here.", last.Content)

	for _, c := range chunks {
		assert.NotContains(t, c.Content, "#", "标题行不应出现在正文中")
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), cfg.ChunkSize)
	}
}

func TestSegment_CharacterWindows(t *testing.T) {
	doc := Document{Source: "letters.txt", Text: "abcdefghij"}
	cfg := Config{ChunkSize: 4, ChunkOverlap: 2, Method: MethodRecursiveOnly}

	chunks, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, contents(chunks))
	for _, c := range chunks {
		assert.Equal(t, "letters.txt", c.Metadata.Source)
	}
}

func TestSegment_EmptyText(t *testing.T) {
	chunks, err := Segment([]Document{{Source: "empty.md", Text: ""}}, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Segment([]Document{{Source: "blank.txt", Text: "  \n\n  "}}, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSegment_Deterministic(t *testing.T) {
	doc := Document{
		Source: "long.md",
		Text:   "# A\n\n" + uniqueWords(300) + "\n\n## B\n\n" + uniqueWords(120) + "\n\n### C\n\n" + uniqueWords(50),
	}
	cfg := Config{ChunkSize: 120, ChunkOverlap: 30, Method: MethodAuto}

	first, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	second, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSegment_RecursiveOnlyCoverage(t *testing.T) {
	text := "First paragraph " + uniqueWords(40) + ".\n\nSecond line one.\nSecond line two " +
		uniqueWords(25) + "\n\n" + strings.Repeat("x", 70) + " tail"
	doc := Document{Source: "doc.txt", Text: text}
	cfg := Config{ChunkSize: 50, ChunkOverlap: 10, Method: MethodRecursiveOnly}

	chunks, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var joined strings.Builder
	for _, c := range chunks {
		assert.Contains(t, text, c.Content, "每个分块都应是原文的连续子串")
		joined.WriteString(nonSpace(c.Content))
	}
	assert.True(t, isSubsequence(nonSpace(text), joined.String()),
		"所有非空白字符都应按顺序出现在分块中")
}

func TestSegment_OverlapBound(t *testing.T) {
	doc := Document{Source: "words.txt", Text: uniqueWords(200)}
	cfg := Config{ChunkSize: 60, ChunkOverlap: 15, Method: MethodRecursiveOnly}

	chunks, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), cfg.ChunkSize)
		if i == 0 {
			continue
		}
		shared := sharedBoundary(chunks[i-1].Content, c.Content)
		assert.LessOrEqual(t, shared, cfg.ChunkOverlap, "chunk %d", i)
		assert.Greater(t, shared, 0, "相邻窗口应当有重叠 chunk %d", i)
	}
}

// sharedBoundary 返回 prev 的后缀与 next 的前缀最长公共长度（字符数）
func sharedBoundary(prev, next string) int {
	p, n := []rune(prev), []rune(next)
	for k := min(len(p), len(n)); k > 0; k-- {
		if string(p[len(p)-k:]) == string(n[:k]) {
			return k
		}
	}
	return 0
}

func TestSegment_CountsRunesNotBytes(t *testing.T) {
	doc := Document{Source: "zh.txt", Text: "知识库预览功能"}
	cfg := Config{ChunkSize: 3, ChunkOverlap: 1, Method: MethodRecursiveOnly}

	chunks, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"知识库", "库预览", "览功能"}, contents(chunks))
}

func TestSegment_ParagraphBoundariesPreferred(t *testing.T) {
	doc := Document{Source: "p.txt", Text: "alpha beta\n\ngamma delta"}
	cfg := Config{ChunkSize: 12, ChunkOverlap: 0, Method: MethodRecursiveOnly}

	chunks, err := Segment([]Document{doc}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha beta", "gamma delta"}, contents(chunks))
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		source string
		want   Strategy
	}{
		{"md 自动", MethodAuto, "docs/a.md", MarkdownAwareStrategy{}},
		{"mdx 大写", MethodAuto, "docs/A.MDX", MarkdownAwareStrategy{}},
		{"txt 自动", MethodAuto, "docs/a.txt", PlainWindowStrategy{}},
		{"md 仅递归", MethodRecursiveOnly, "docs/a.md", PlainWindowStrategy{}},
		{"无扩展名", MethodAuto, "README", PlainWindowStrategy{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectStrategy(tt.method, tt.source))
		})
	}
}

func TestSplitByHeaders(t *testing.T) {
	src := strings.Join([]string{
		"Preface text.",
		"",
		"# One",
		"",
		"Body one.",
		"",
		"```",
		"# not a heading",
		"```",
		"",
		"### Deep",
		"",
		"Deep body.",
		"",
		"## Two",
		"",
		"Body two.",
		"",
		"Setext",
		"======",
		"",
		"> # quoted",
		"",
		"# Three",
		"Body three.",
	}, "\n")

	sections := splitByHeaders(src)
	require.Len(t, sections, 5)

	assert.Equal(t, "Preface text.", sections[0].content)
	assert.Equal(t, [3]string{}, sections[0].headers)

	assert.Equal(t, "Body one.\n\n```\n# not a heading\n```", sections[1].content)
	assert.Equal(t, [3]string{"One", "", ""}, sections[1].headers)

	assert.Equal(t, "Deep body.", sections[2].content)
	assert.Equal(t, [3]string{"One", "", "Deep"}, sections[2].headers)

	// 二级标题会清空三级标题
	assert.Contains(t, sections[3].content, "Body two.")
	assert.Contains(t, sections[3].content, "Setext\n======")
	assert.Contains(t, sections[3].content, "> # quoted")
	assert.Equal(t, [3]string{"One", "Two", ""}, sections[3].headers)

	// 一级标题会清空所有下级标题
	assert.Equal(t, "Body three.", sections[4].content)
	assert.Equal(t, [3]string{"Three", "", ""}, sections[4].headers)
}

func TestSplitByHeaders_IgnoresDeeperLevels(t *testing.T) {
	sections := splitByHeaders("# A\n\n#### Four\n\ntext")
	require.Len(t, sections, 1)
	assert.Equal(t, "#### Four\n\ntext", sections[0].content)
	assert.Equal(t, "A", sections[0].headers[0])
}

func TestSplitByHeaders_ClosingHashes(t *testing.T) {
	sections := splitByHeaders("## Title ##\nbody")
	require.Len(t, sections, 1)
	assert.Equal(t, "Title", sections[0].headers[1])
	assert.Equal(t, "body", sections[0].content)
}
