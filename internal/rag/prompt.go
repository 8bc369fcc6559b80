package rag

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
)

const systemPromptTemplate = "你是一个严谨的中文助手。你只能基于给定的“上下文”回答问题，禁止编造。" +
	"如果上下文中没有答案，请直接说明“我不知道/资料不足”。" +
	"如果能从上下文中定位到来源文件名，请在回答中引用文件名。\n\n" +
	"用户记忆（可能为空）：\n%s\n\n" +
	"上下文：\n%s"

var sourceKeys = []string{"source", "file_path", "path", "filename", "file_name", "file"}

// SourceName 从元数据中解析来源文件名，依次尝试常见键，找不到时为 unknown
func SourceName(meta map[string]any) string {
	for _, key := range sourceKeys {
		v, ok := meta[key]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		return filepath.Base(strings.ReplaceAll(s, "\\", "/"))
	}
	return "unknown"
}

// FormatDocs 将检索结果拼接为上下文文本
func FormatDocs(hits []storage.SearchHit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		meta := h.Metadata
		if _, ok := meta["source"]; !ok && h.Source != "" {
			meta = make(map[string]any, len(h.Metadata)+1)
			for k, v := range h.Metadata {
				meta[k] = v
			}
			meta["source"] = h.Source
		}
		blocks[i] = "Source: " + SourceName(meta) + "\n" + h.Content
	}
	return strings.Join(blocks, "\n\n")
}

// BuildMessages 组装系统提示、历史消息与当前问题
func BuildMessages(question string, history []Message, memory, docs string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: fmt.Sprintf(systemPromptTemplate, memory, docs)})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: question})
	return msgs
}
