package data

import (
	"context"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DepartmentPO departments 表
type DepartmentPO struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:100;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

func (DepartmentPO) TableName() string {
	return "departments"
}

// UserPO users 表
type UserPO struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"size:150;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:255;not null"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	DepartmentID int64     `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null"`

	Department DepartmentPO `gorm:"foreignKey:DepartmentID;constraint:OnDelete:RESTRICT"`
}

func (UserPO) TableName() string {
	return "users"
}

// UserMemoryPO user_memory 表，每个用户一行
type UserMemoryPO struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false"`
	Memory    string    `gorm:"type:text;not null;default:''"`
	UpdatedAt time.Time `gorm:"not null"`

	User UserPO `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (UserMemoryPO) TableName() string {
	return "user_memory"
}

// Models 需要迁移的表
func Models() []any {
	return []any{&DepartmentPO{}, &UserPO{}, &UserMemoryPO{}, &APITokenPO{}}
}

// UserRepo 实现 biz.UserRepo
type UserRepo struct {
	db *database.DB
}

// NewUserRepo 创建用户仓储
func NewUserRepo(db *database.DB) biz.UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) HasAny(ctx context.Context) (bool, error) {
	var n int64
	if err := r.db.Conn(ctx).Model(&UserPO{}).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepo) Create(ctx context.Context, user *biz.User, department string) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)

		dept, err := getOrCreateDepartment(tx, department, user.CreatedAt)
		if err != nil {
			return err
		}

		po := &UserPO{
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			IsAdmin:      user.IsAdmin,
			DepartmentID: dept.ID,
			CreatedAt:    user.CreatedAt,
		}
		if err := tx.Omit(clause.Associations).Create(po).Error; err != nil {
			if database.IsDuplicateKeyError(err) {
				return biz.ErrDuplicate
			}
			return err
		}

		mem := &UserMemoryPO{UserID: po.ID, UpdatedAt: user.CreatedAt}
		if err := tx.Omit(clause.Associations).Create(mem).Error; err != nil {
			return err
		}

		user.ID = po.ID
		user.DepartmentID = dept.ID
		user.DepartmentName = dept.Name
		return nil
	})
}

func getOrCreateDepartment(tx *gorm.DB, name string, now time.Time) (*DepartmentPO, error) {
	var dept DepartmentPO
	err := tx.Where("name = ?", name).First(&dept).Error
	if err == nil {
		return &dept, nil
	}
	if !database.IsRecordNotFoundError(err) {
		return nil, err
	}

	dept = DepartmentPO{Name: name, CreatedAt: now}
	if err := tx.Create(&dept).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*biz.User, error) {
	return r.first(ctx, "users.id = ?", id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*biz.User, error) {
	return r.first(ctx, "users.username = ?", username)
}

func (r *UserRepo) first(ctx context.Context, query string, args ...any) (*biz.User, error) {
	var po UserPO
	err := r.db.Conn(ctx).Preload("Department").Where(query, args...).First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return nil, biz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toUser(&po), nil
}

func (r *UserRepo) List(ctx context.Context) ([]*biz.User, error) {
	var pos []UserPO
	if err := r.db.Conn(ctx).Preload("Department").Order("username").Find(&pos).Error; err != nil {
		return nil, err
	}

	users := make([]*biz.User, len(pos))
	for i := range pos {
		users[i] = toUser(&pos[i])
	}
	return users, nil
}

func (r *UserRepo) ListDepartments(ctx context.Context) ([]*biz.Department, error) {
	var pos []DepartmentPO
	if err := r.db.Conn(ctx).Order("name").Find(&pos).Error; err != nil {
		return nil, err
	}

	out := make([]*biz.Department, len(pos))
	for i, po := range pos {
		out[i] = &biz.Department{ID: po.ID, Name: po.Name, CreatedAt: po.CreatedAt}
	}
	return out, nil
}

func (r *UserRepo) GetMemory(ctx context.Context, userID int64) (string, error) {
	var po UserMemoryPO
	err := r.db.Conn(ctx).Where("user_id = ?", userID).First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return "", biz.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return po.Memory, nil
}

func (r *UserRepo) SetMemory(ctx context.Context, userID int64, memory string, at time.Time) error {
	po := &UserMemoryPO{UserID: userID, Memory: memory, UpdatedAt: at}
	return r.db.Conn(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"memory", "updated_at"}),
	}).Create(po).Error
}

func toUser(po *UserPO) *biz.User {
	name := po.Department.Name
	if name == "" {
		name = biz.DefaultDepartment
	}
	return &biz.User{
		ID:             po.ID,
		Username:       po.Username,
		PasswordHash:   po.PasswordHash,
		IsAdmin:        po.IsAdmin,
		DepartmentID:   po.DepartmentID,
		DepartmentName: name,
		CreatedAt:      po.CreatedAt,
	}
}
