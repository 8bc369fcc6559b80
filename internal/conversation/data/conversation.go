package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/conversation/biz"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
)

// ConversationPO conversations 表
type ConversationPO struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	UserID         int64     `gorm:"not null;index"`
	Title          string    `gorm:"size:255;not null"`
	ThreadID       *string   `gorm:"size:64;uniqueIndex"`
	ThreadMetadata string    `gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null;index"`
}

func (ConversationPO) TableName() string {
	return "conversations"
}

// MessagePO messages 表
type MessagePO struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	ConversationID int64     `gorm:"not null;index"`
	Role           string    `gorm:"size:16;not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`

	Conversation ConversationPO `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (MessagePO) TableName() string {
	return "messages"
}

// Models 需要迁移的表
func Models() []any {
	return []any{&ConversationPO{}, &MessagePO{}}
}

// ConversationRepo 实现 biz.ConversationRepo
type ConversationRepo struct {
	db *database.DB
}

// NewConversationRepo 创建会话仓储
func NewConversationRepo(db *database.DB) biz.ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *biz.Conversation) error {
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return err
	}

	po := &ConversationPO{
		UserID:         conv.UserID,
		Title:          conv.Title,
		ThreadMetadata: string(meta),
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
	if conv.ThreadID != "" {
		po.ThreadID = &conv.ThreadID
	}
	if err := r.db.Conn(ctx).Create(po).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return biz.ErrDuplicate
		}
		return err
	}
	conv.ID = po.ID
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, userID, id int64) (*biz.Conversation, error) {
	return r.first(ctx, "id = ? AND user_id = ?", id, userID)
}

func (r *ConversationRepo) GetByThreadID(ctx context.Context, userID int64, threadID string) (*biz.Conversation, error) {
	return r.first(ctx, "thread_id = ? AND user_id = ?", threadID, userID)
}

func (r *ConversationRepo) first(ctx context.Context, query string, args ...any) (*biz.Conversation, error) {
	var po ConversationPO
	err := r.db.Conn(ctx).Where(query, args...).First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return nil, biz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toConversation(&po), nil
}

func (r *ConversationRepo) List(ctx context.Context, userID int64) ([]*biz.Conversation, error) {
	var pos []ConversationPO
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return toConversations(pos), nil
}

func (r *ConversationRepo) ListThreads(ctx context.Context, userID int64, limit, offset int) ([]*biz.Conversation, error) {
	var pos []ConversationPO
	err := r.db.Conn(ctx).
		Where("user_id = ? AND thread_id IS NOT NULL AND thread_id <> ''", userID).
		Order("updated_at DESC, id DESC").
		Scopes(database.Page(limit, offset)).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return toConversations(pos), nil
}

func (r *ConversationRepo) Delete(ctx context.Context, userID, id int64) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&ConversationPO{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return biz.ErrNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&MessagePO{}).Error
	})
}

func (r *ConversationRepo) AddMessage(ctx context.Context, msg *biz.Message) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)
		po := &MessagePO{
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
		}
		if err := tx.Omit("Conversation").Create(po).Error; err != nil {
			return err
		}
		msg.ID = po.ID

		return tx.Model(&ConversationPO{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID int64) ([]*biz.Message, error) {
	var pos []MessagePO
	err := r.db.Conn(ctx).Where("conversation_id = ?", conversationID).Order("id").Find(&pos).Error
	if err != nil {
		return nil, err
	}

	out := make([]*biz.Message, len(pos))
	for i := range pos {
		out[i] = toMessage(&pos[i])
	}
	return out, nil
}

func (r *ConversationRepo) FirstMessage(ctx context.Context, conversationID int64) (*biz.Message, error) {
	var po MessagePO
	err := r.db.Conn(ctx).Where("conversation_id = ?", conversationID).Order("id").First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return nil, biz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMessage(&po), nil
}

func toConversations(pos []ConversationPO) []*biz.Conversation {
	out := make([]*biz.Conversation, len(pos))
	for i := range pos {
		out[i] = toConversation(&pos[i])
	}
	return out
}

func toConversation(po *ConversationPO) *biz.Conversation {
	conv := &biz.Conversation{
		ID:        po.ID,
		UserID:    po.UserID,
		Title:     po.Title,
		Metadata:  biz.ParseMetadata(po.ThreadMetadata),
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}
	if po.ThreadID != nil {
		conv.ThreadID = *po.ThreadID
	}
	return conv
}

func toMessage(po *MessagePO) *biz.Message {
	return &biz.Message{
		ID:             po.ID,
		ConversationID: po.ConversationID,
		Role:           po.Role,
		Content:        po.Content,
		CreatedAt:      po.CreatedAt,
	}
}
