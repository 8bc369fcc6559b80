package biz

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/validator"
)

// MaxThreadPageSize 线程列表单页上限
const MaxThreadPageSize = 100

// ListThreads 线程列表，每个线程只带第一条消息作为预览
func (uc *ConversationUseCase) ListThreads(ctx context.Context, userID int64, limit, offset int) ([]*Thread, error) {
	limit, offset = validator.Paging(limit, offset, MaxThreadPageSize)

	convs, err := uc.repo.ListThreads(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list threads")
	}

	out := make([]*Thread, 0, len(convs))
	for _, conv := range convs {
		t := toThread(conv)
		first, err := uc.repo.FirstMessage(ctx, conv.ID)
		switch {
		case err == nil:
			t.Values.Messages = append(t.Values.Messages, toThreadMessage(first))
		case !errors.Is(err, ErrNotFound):
			return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "load first message")
		}
		t.Title = ""
		out = append(out, t)
	}
	return out, nil
}

// CreateThread 创建线程。metadata 缺少 graph_id 时补 agent，标题取 metadata.title
func (uc *ConversationUseCase) CreateThread(ctx context.Context, userID int64, threadID string, metadata map[string]any) (*Thread, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "thread_id is required")
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if s, _ := meta["graph_id"].(string); s == "" {
		meta["graph_id"] = DefaultGraphID
	}
	title, _ := meta["title"].(string)
	if title == "" {
		title = DefaultTitle
	}

	now := uc.now()
	conv := &Conversation{
		UserID:    userID,
		Title:     title,
		ThreadID:  threadID,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, conv); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperrors.New(apperrors.ErrConflict, "thread already exists")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "create thread")
	}

	t := toThread(conv)
	t.Title = ""
	return t, nil
}

// GetThread 线程元信息（不含消息）
func (uc *ConversationUseCase) GetThread(ctx context.Context, userID int64, threadID string) (*Thread, error) {
	conv, err := uc.thread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	return toThread(conv), nil
}

// GetThreadState 线程全部消息及检查点
func (uc *ConversationUseCase) GetThreadState(ctx context.Context, userID int64, threadID string) (*ThreadState, error) {
	conv, err := uc.thread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	msgs, err := uc.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list messages")
	}

	state := &ThreadState{
		Checkpoint: Checkpoint{ThreadID: threadID, CheckpointID: "0"},
		Values:     ThreadValues{Messages: make([]ThreadMessage, 0, len(msgs))},
	}
	for _, m := range msgs {
		state.Values.Messages = append(state.Values.Messages, toThreadMessage(m))
		state.Checkpoint.CheckpointID = strconv.FormatInt(m.ID, 10)
	}
	return state, nil
}

// AppendThreadMessage 向线程追加消息。role 接受 human/user 与 ai/assistant
func (uc *ConversationUseCase) AppendThreadMessage(ctx context.Context, userID int64, threadID, role, content string) (*Message, error) {
	var dbRole string
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "human", RoleUser:
		dbRole = RoleUser
	case "ai", RoleAssistant:
		dbRole = RoleAssistant
	default:
		return nil, apperrors.New(apperrors.ErrInvalidMessageRole, "role must be human/ai (or user/assistant)")
	}

	conv, err := uc.thread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	return uc.insert(ctx, conv.ID, dbRole, content)
}

// ThreadHistory 线程消息，按写入顺序
func (uc *ConversationUseCase) ThreadHistory(ctx context.Context, userID int64, threadID string) ([]*Message, error) {
	conv, err := uc.thread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	msgs, err := uc.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list messages")
	}
	return msgs, nil
}

func (uc *ConversationUseCase) thread(ctx context.Context, userID int64, threadID string) (*Conversation, error) {
	conv, err := uc.repo.GetByThreadID(ctx, userID, threadID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrThreadNotFound)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return conv, nil
}

func toThread(conv *Conversation) *Thread {
	meta := conv.Metadata
	if meta == nil {
		meta = map[string]any{"graph_id": DefaultGraphID}
	}
	return &Thread{
		ThreadID:  conv.ThreadID,
		Metadata:  meta,
		Values:    ThreadValues{Messages: []ThreadMessage{}},
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Title:     conv.Title,
	}
}

func toThreadMessage(m *Message) ThreadMessage {
	typ := "ai"
	if m.Role == RoleUser {
		typ = "human"
	}
	return ThreadMessage{Type: typ, Content: m.Content, ID: "m-" + strconv.FormatInt(m.ID, 10)}
}

// ParseMetadata 解析存储的线程元数据，空值或非对象时返回默认值
func ParseMetadata(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{"graph_id": DefaultGraphID}
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil || meta == nil {
		return map[string]any{"graph_id": DefaultGraphID}
	}
	return meta
}
