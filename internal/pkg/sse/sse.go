package sse

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
)

var ErrClientGone = errors.New("sse: client disconnected")

// Event SSE 事件
type Event struct {
	Type string
	Data interface{}
}

// FormatSSE 格式化为 SSE 消息格式
func (e Event) FormatSSE() string {
	data, _ := json.Marshal(e.Data)
	return "event: " + e.Type + "\ndata: " + string(data) + "\n\n"
}

// Writer 单次请求的 SSE 写入器
type Writer struct {
	c *gin.Context
}

// NewWriter 设置 SSE 响应头并返回写入器
func NewWriter(c *gin.Context) *Writer {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)
	return &Writer{c: c}
}

// Send 写入一个事件并立即 flush
func (w *Writer) Send(eventType string, data interface{}) error {
	select {
	case <-w.c.Request.Context().Done():
		return ErrClientGone
	default:
	}

	ev := Event{Type: eventType, Data: data}
	if _, err := fmt.Fprint(w.c.Writer, ev.FormatSSE()); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// Comment 写入注释行（心跳）
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.c.Writer, ": %s\n\n", text); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}
