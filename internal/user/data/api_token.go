package data

import (
	"context"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"gorm.io/gorm/clause"
)

// APITokenPO api_tokens 表
type APITokenPO struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	UserID     int64     `gorm:"not null;index"`
	TokenHash  []byte    `gorm:"not null;uniqueIndex"`
	Prefix     string    `gorm:"column:token_prefix;size:16;not null"`
	Name       string    `gorm:"size:100;not null;default:''"`
	CreatedAt  time.Time `gorm:"not null"`
	RevokedAt  *time.Time
	LastUsedAt *time.Time

	User UserPO `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (APITokenPO) TableName() string {
	return "api_tokens"
}

func (r *UserRepo) CreateAPIToken(ctx context.Context, token *biz.APIToken) error {
	po := &APITokenPO{
		UserID:    token.UserID,
		TokenHash: token.TokenHash,
		Prefix:    token.Prefix,
		Name:      token.Name,
		CreatedAt: token.CreatedAt,
	}
	if err := r.db.Conn(ctx).Omit(clause.Associations).Create(po).Error; err != nil {
		return err
	}
	token.ID = po.ID
	return nil
}

func (r *UserRepo) FindActiveAPIToken(ctx context.Context, hash []byte) (*biz.APIToken, *biz.User, error) {
	var po APITokenPO
	err := r.db.Conn(ctx).
		Preload("User").
		Preload("User.Department").
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return nil, nil, biz.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	return toAPIToken(&po), toUser(&po.User), nil
}

func (r *UserRepo) ListAPITokens(ctx context.Context, userID int64) ([]*biz.APIToken, error) {
	var pos []APITokenPO
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	out := make([]*biz.APIToken, len(pos))
	for i := range pos {
		out[i] = toAPIToken(&pos[i])
	}
	return out, nil
}

func (r *UserRepo) TouchAPIToken(ctx context.Context, id int64, at time.Time) error {
	return r.db.Conn(ctx).Model(&APITokenPO{}).Where("id = ?", id).Update("last_used_at", at).Error
}

func (r *UserRepo) RevokeAPIToken(ctx context.Context, userID, id int64, at time.Time) error {
	res := r.db.Conn(ctx).Model(&APITokenPO{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		Update("revoked_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return biz.ErrNotFound
	}
	return nil
}

func toAPIToken(po *APITokenPO) *biz.APIToken {
	return &biz.APIToken{
		ID:         po.ID,
		UserID:     po.UserID,
		TokenHash:  po.TokenHash,
		Prefix:     po.Prefix,
		Name:       po.Name,
		CreatedAt:  po.CreatedAt,
		RevokedAt:  po.RevokedAt,
		LastUsedAt: po.LastUsedAt,
	}
}
