package data

import (
	"context"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/admin/biz"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"gorm.io/gorm/clause"
)

// AuditLogPO audit_log 表
type AuditLogPO struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    *int64    `gorm:"index"`
	Action    string    `gorm:"size:100;not null;index"`
	Target    string    `gorm:"size:1024;not null"`
	Details   string    `gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AuditLogPO) TableName() string {
	return "audit_log"
}

// SettingPO settings 表
type SettingPO struct {
	Key       string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
	UpdatedBy *int64    `gorm:"column:updated_by_user_id"`
}

func (SettingPO) TableName() string {
	return "settings"
}

// Models 需要迁移的表
func Models() []any {
	return []any{&AuditLogPO{}, &SettingPO{}}
}

// AuditRepo 实现 biz.AuditRepo
type AuditRepo struct {
	db *database.DB
}

// NewAuditRepo 创建审计仓储
func NewAuditRepo(db *database.DB) biz.AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Create(ctx context.Context, event *biz.AuditEvent) error {
	po := &AuditLogPO{
		UserID:    event.UserID,
		Action:    event.Action,
		Target:    event.Target,
		Details:   event.Details,
		CreatedAt: event.CreatedAt,
	}
	if err := r.db.Conn(ctx).Create(po).Error; err != nil {
		return err
	}
	event.ID = po.ID
	return nil
}

func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]*biz.AuditEvent, error) {
	var pos []AuditLogPO
	if err := r.db.Conn(ctx).Order("id DESC").Limit(limit).Find(&pos).Error; err != nil {
		return nil, err
	}

	out := make([]*biz.AuditEvent, len(pos))
	for i, po := range pos {
		out[i] = &biz.AuditEvent{
			ID:        po.ID,
			UserID:    po.UserID,
			Action:    po.Action,
			Target:    po.Target,
			Details:   po.Details,
			CreatedAt: po.CreatedAt,
		}
	}
	return out, nil
}

// SettingRepo 实现 biz.SettingRepo
type SettingRepo struct {
	db *database.DB
}

// NewSettingRepo 创建设置仓储
func NewSettingRepo(db *database.DB) biz.SettingRepo {
	return &SettingRepo{db: db}
}

func (r *SettingRepo) Get(ctx context.Context, key string) (*biz.Setting, error) {
	var po SettingPO
	err := r.db.Conn(ctx).Where(&SettingPO{Key: key}).First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return nil, biz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSetting(&po), nil
}

func (r *SettingRepo) List(ctx context.Context) ([]*biz.Setting, error) {
	var pos []SettingPO
	if err := r.db.Conn(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&pos).Error; err != nil {
		return nil, err
	}
	out := make([]*biz.Setting, len(pos))
	for i := range pos {
		out[i] = toSetting(&pos[i])
	}
	return out, nil
}

func (r *SettingRepo) Upsert(ctx context.Context, s *biz.Setting) error {
	po := &SettingPO{Key: s.Key, Value: s.Value, UpdatedAt: s.UpdatedAt, UpdatedBy: s.UpdatedBy}
	return r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "updated_by_user_id"}),
	}).Create(po).Error
}

func toSetting(po *SettingPO) *biz.Setting {
	return &biz.Setting{Key: po.Key, Value: po.Value, UpdatedAt: po.UpdatedAt, UpdatedBy: po.UpdatedBy}
}
