package lgapi

import (
	"strings"

	"github.com/tidwall/gjson"
)

// contentText 提取消息文本：字符串、{type:text} 块列表（空格拼接）或单个文本块
func contentText(r gjson.Result) string {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return ""
	case r.Type == gjson.String:
		return r.String()
	case r.IsArray():
		var texts []string
		r.ForEach(func(_, block gjson.Result) bool {
			if t, ok := textBlock(block); ok && t != "" {
				texts = append(texts, t)
			}
			return true
		})
		return strings.TrimSpace(strings.Join(texts, " "))
	case r.IsObject():
		if t, ok := textBlock(r); ok {
			return t
		}
	}
	return r.Raw
}

func textBlock(block gjson.Result) (string, bool) {
	if !block.IsObject() || block.Get("type").String() != "text" {
		return "", false
	}
	text := block.Get("text")
	if text.Type != gjson.String {
		return "", false
	}
	return text.String(), true
}
