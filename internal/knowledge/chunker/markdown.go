package chunker

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxHeaderLevel 只按 1~3 级标题切分
const maxHeaderLevel = 3

// section 两个标题之间的正文，带当前生效的标题上下文
type section struct {
	content string
	headers [maxHeaderLevel]string
}

// headingLine 文档顶层的 ATX 标题行
type headingLine struct {
	level int
	title string
	start int // 行首字节偏移
	end   int // 行尾（不含换行符）字节偏移
}

// splitByHeaders 按 1~3 级 ATX 标题切分 Markdown 文本
//
// 标题行本身不计入正文；遇到 n 级标题时清空所有 >= n 级的标题上下文。
// 代码块、引用、列表中的 # 不会被当作标题。
func splitByHeaders(src string) []section {
	headings := findHeadings([]byte(src))

	var (
		sections []section
		active   [maxHeaderLevel]string
	)
	emit := func(body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		sections = append(sections, section{content: body, headers: active})
	}

	prev := 0
	for _, h := range headings {
		emit(src[prev:h.start])
		for lvl := h.level; lvl <= maxHeaderLevel; lvl++ {
			active[lvl-1] = ""
		}
		active[h.level-1] = h.title
		prev = h.end
	}
	emit(src[prev:])
	return sections
}

// findHeadings 用 goldmark 解析文档，收集顶层 1~3 级 ATX 标题的位置
func findHeadings(src []byte) []headingLine {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var headings []headingLine
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > maxHeaderLevel || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		start := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
		// Setext 标题（下划线形式）不参与切分
		if !bytes.HasPrefix(bytes.TrimLeft(src[start:seg.Start], " \t"), []byte("#")) {
			continue
		}
		end := len(src)
		if i := bytes.IndexByte(src[seg.Start:], '\n'); i >= 0 {
			end = seg.Start + i
		}
		headings = append(headings, headingLine{
			level: h.Level,
			title: strings.TrimSpace(string(seg.Value(src))),
			start: start,
			end:   end,
		})
	}
	return headings
}
