package chunker

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators 按优先级从高到低：段落、换行、单词、字符
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextSplitter 递归字符分块器
//
// 依次尝试用更小粒度的分隔符切分文本，再把小片段合并成不超过 size 个字符
// 的窗口，相邻窗口之间最多保留 overlap 个字符。分隔符保留在后一个片段的开头，
// 因此同一窗口内的片段拼接后仍是原文的连续子串。
type TextSplitter struct {
	size       int
	overlap    int
	separators []string
}

// NewTextSplitter 创建递归分块器，调用方需保证配置已校验
func NewTextSplitter(size, overlap int) *TextSplitter {
	return &TextSplitter{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// SplitText 将文本切分为窗口，空白窗口会被丢弃
func (s *TextSplitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	return s.splitText(text, s.separators)
}

func (s *TextSplitter) splitText(text string, separators []string) []string {
	// 选出文本中实际出现的第一个分隔符
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var (
		chunks []string
		good   []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.mergeSplits(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.splitText(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.mergeSplits(good)...)
	}
	return chunks
}

// mergeSplits 把片段合并为窗口，超过大小时从头部弹出片段直到只剩重叠部分
func (s *TextSplitter) mergeSplits(splits []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, piece := range splits {
		n := runeLen(piece)
		if total+n > s.size {
			if len(current) > 0 {
				if doc := joinPieces(current); doc != "" {
					docs = append(docs, doc)
				}
				for total > s.overlap || (total+n > s.size && total > 0) {
					total -= runeLen(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinPieces(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator 按分隔符切分，分隔符挂在后一个片段开头；空分隔符按字符切分
func splitKeepSeparator(text, separator string) []string {
	var pieces []string
	if separator == "" {
		pieces = make([]string, 0, utf8.RuneCountInString(text))
		for i, w := 0, 0; i < len(text); i += w {
			_, w = utf8.DecodeRuneInString(text[i:])
			pieces = append(pieces, text[i:i+w])
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, part := range parts[1:] {
		pieces = append(pieces, separator+part)
	}
	return pieces
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
