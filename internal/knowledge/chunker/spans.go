package chunker

import (
	"strings"
	"unicode/utf8"
)

// SpanProbeChars 前缀探测使用的最大字符数
const SpanProbeChars = 200

// LocateSpans 为分块计算其在原文中的字节区间 [start, end)
//
// 使用单调不减的游标从左到右查找：依次尝试精确匹配、去首尾空白匹配、
// 前缀探测（结束位置为近似值）。全部失败时区间为 nil 且游标不动。
// 匹配失败不返回错误，只有分块来自多个文档时返回 ErrMultiDocumentSpans。
func LocateSpans(original string, chunks []Chunk) ([]Chunk, error) {
	if err := requireSingleSource(chunks); err != nil {
		return nil, err
	}

	out := make([]Chunk, len(chunks))
	cursor := 0
	for i, c := range chunks {
		md := c.Metadata.clone()
		start, end, ok := locate(original, c.Content, cursor)
		if ok {
			md.SpanStart, md.SpanEnd = &start, &end
			cursor = end
		} else {
			md.SpanStart, md.SpanEnd = nil, nil
		}
		out[i] = Chunk{Content: c.Content, Metadata: md}
	}
	return out, nil
}

func locate(original, content string, cursor int) (start, end int, ok bool) {
	if content == "" {
		return 0, 0, false
	}

	if p := indexFrom(original, content, cursor); p >= 0 {
		return p, p + len(content), true
	}

	if stripped := strings.TrimSpace(content); stripped != "" && stripped != content {
		if p := indexFrom(original, stripped, cursor); p >= 0 {
			return p, p + len(stripped), true
		}
	}

	if probe := strings.TrimSpace(runePrefix(content, SpanProbeChars)); probe != "" {
		if p := indexFrom(original, probe, cursor); p >= 0 {
			end := min(len(original), p+len(content))
			// 近似结束位置可能落在多字节字符中间
			for end > p && end < len(original) && !utf8.RuneStart(original[end]) {
				end--
			}
			return p, end, true
		}
	}
	return 0, 0, false
}

// indexFrom 从 from 开始查找子串，返回在 s 中的绝对位置
func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	i := strings.Index(s[from:], substr)
	if i < 0 {
		return -1
	}
	return from + i
}

// runePrefix 返回前 n 个字符
func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func requireSingleSource(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	source := chunks[0].Metadata.Source
	for _, c := range chunks[1:] {
		if c.Metadata.Source != source {
			return ErrMultiDocumentSpans
		}
	}
	return nil
}
