package data

import (
	"context"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/biz"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"gorm.io/gorm/clause"
)

// KBFilePO kb_files 表，path 为相对知识库根的路径
type KBFilePO struct {
	Path           string    `gorm:"primaryKey;size:1024"`
	UploaderUserID *int64    `gorm:"index"`
	SizeBytes      int64     `gorm:"not null;default:0"`
	UploadedAt     time.Time `gorm:"not null"`
}

func (KBFilePO) TableName() string {
	return "kb_files"
}

// Models 需要迁移的表
func Models() []any {
	return []any{&KBFilePO{}}
}

// FileMetaRepo 实现 biz.FileMetaRepo
type FileMetaRepo struct {
	db *database.DB
}

// NewFileMetaRepo 创建上传记录仓储
func NewFileMetaRepo(db *database.DB) biz.FileMetaRepo {
	return &FileMetaRepo{db: db}
}

// Upsert 同名文件重新上传时覆盖上传者与时间
func (r *FileMetaRepo) Upsert(ctx context.Context, meta *biz.FileMeta) error {
	po := &KBFilePO{
		Path:           meta.Path,
		UploaderUserID: meta.UploaderID,
		SizeBytes:      meta.Size,
		UploadedAt:     meta.UploadedAt,
	}
	return r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"uploader_user_id", "size_bytes", "uploaded_at"}),
	}).Create(po).Error
}

func (r *FileMetaRepo) Get(ctx context.Context, path string) (*biz.FileMeta, error) {
	var po KBFilePO
	if err := r.db.Conn(ctx).Where(&KBFilePO{Path: path}).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrNotFound
		}
		return nil, err
	}
	return toFileMeta(&po), nil
}

func (r *FileMetaRepo) List(ctx context.Context) ([]*biz.FileMeta, error) {
	var pos []KBFilePO
	if err := r.db.Conn(ctx).Order("path").Find(&pos).Error; err != nil {
		return nil, err
	}
	out := make([]*biz.FileMeta, len(pos))
	for i := range pos {
		out[i] = toFileMeta(&pos[i])
	}
	return out, nil
}

// Delete 记录不存在时不报错
func (r *FileMetaRepo) Delete(ctx context.Context, path string) error {
	return r.db.Conn(ctx).Where(&KBFilePO{Path: path}).Delete(&KBFilePO{}).Error
}

func toFileMeta(po *KBFilePO) *biz.FileMeta {
	return &biz.FileMeta{
		Path:       po.Path,
		UploaderID: po.UploaderUserID,
		Size:       po.SizeBytes,
		UploadedAt: po.UploadedAt,
	}
}
