package biz

import (
	"errors"
	"time"
)

// DefaultTitle 新会话默认标题
const DefaultTitle = "新对话"

// DefaultGraphID 线程元数据中默认的 graph_id
const DefaultGraphID = "agent"

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNotFound 仓储层记录不存在
	ErrNotFound = errors.New("conversation: record not found")
	// ErrDuplicate thread_id 冲突
	ErrDuplicate = errors.New("conversation: duplicate thread id")
)

// Conversation 会话
type Conversation struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"-"`
	Title     string         `json:"title"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Message 会话消息
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"-"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ThreadMessage 线程接口中的消息格式，type 为 human 或 ai
type ThreadMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ID      string `json:"id"`
}

// ThreadValues 线程状态值
type ThreadValues struct {
	Messages []ThreadMessage `json:"messages"`
}

// Thread 线程视图
type Thread struct {
	ThreadID  string         `json:"thread_id"`
	Metadata  map[string]any `json:"metadata"`
	Values    ThreadValues   `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Title     string         `json:"title,omitempty"`
}

// Checkpoint 检查点，checkpoint_id 为线程中最后一条消息的 ID
type Checkpoint struct {
	ThreadID     string `json:"thread_id"`
	CheckpointID string `json:"checkpoint_id"`
}

// ThreadState 线程完整状态
type ThreadState struct {
	Checkpoint       Checkpoint   `json:"checkpoint"`
	ParentCheckpoint *Checkpoint  `json:"parent_checkpoint"`
	Values           ThreadValues `json:"values"`
}
