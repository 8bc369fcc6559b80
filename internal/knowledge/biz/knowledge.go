package biz

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/auth"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/ingest"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/loader"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// DefaultMaxUploadSize 单个上传文件的默认大小上限
const DefaultMaxUploadSize int64 = 20 << 20

var ErrNotFound = errors.New("kb file meta not found")

// FileMeta 上传记录，对应 kb_files 表
type FileMeta struct {
	Path       string
	UploaderID *int64
	Size       int64
	UploadedAt time.Time
}

// KBFile 知识库文件列表项，通过命令行放入目录的文件没有上传记录
type KBFile struct {
	Path       string     `json:"path"`
	Size       int64      `json:"size_bytes"`
	ModTime    time.Time  `json:"modified_at"`
	UploaderID *int64     `json:"uploader_user_id,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

// FileMetaRepo kb_files 仓储
type FileMetaRepo interface {
	Upsert(ctx context.Context, meta *FileMeta) error
	Get(ctx context.Context, path string) (*FileMeta, error)
	List(ctx context.Context) ([]*FileMeta, error)
	Delete(ctx context.Context, path string) error
}

// Policy 知识库操作权限
type Policy interface {
	CanDeleteKBFile(ctx context.Context, p auth.Principal, uploaderID *int64) bool
	CanReindexKB(ctx context.Context, p auth.Principal) bool
}

// Indexer 重建向量索引
type Indexer interface {
	Ingest(ctx context.Context, opts ingest.Options) (*ingest.Report, error)
}

// KnowledgeUseCase 知识库文件管理
type KnowledgeUseCase struct {
	files     storage.FileStore
	meta      FileMetaRepo
	policy    Policy
	indexer   Indexer
	maxUpload int64
	tokens    chunker.TokenCounter
	logger    *logger.Logger
	now       func() time.Time
}

// NewKnowledgeUseCase 创建知识库用例，maxUpload <= 0 时使用默认上限
func NewKnowledgeUseCase(
	files storage.FileStore,
	meta FileMetaRepo,
	policy Policy,
	indexer Indexer,
	maxUpload int64,
	log *logger.Logger,
) *KnowledgeUseCase {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	return &KnowledgeUseCase{
		files:     files,
		meta:      meta,
		policy:    policy,
		indexer:   indexer,
		maxUpload: maxUpload,
		logger:    log.Named("knowledge"),
		now:       time.Now,
	}
}

// MaxUploadSize 上传大小上限（字节）
func (uc *KnowledgeUseCase) MaxUploadSize() int64 {
	return uc.maxUpload
}

// Upload 保存上传文件（只保留基本文件名，同名覆盖）并记录上传者，不触发入库
func (uc *KnowledgeUseCase) Upload(ctx context.Context, p auth.Principal, filename string, data []byte) (*KBFile, error) {
	name, err := storage.SafeName(filename)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "invalid file name")
	}
	if !loader.IsSupported(name) {
		return nil, apperrors.New(apperrors.ErrKBInvalidFileType, strings.Join(loader.SupportedExtensions, ", "))
	}
	if int64(len(data)) > uc.maxUpload {
		return nil, apperrors.New(apperrors.ErrKBFileTooLarge)
	}

	info, err := uc.files.Save(ctx, name, data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrKBStorageFailed)
	}

	uploader := p.UserID
	meta := &FileMeta{Path: info.Name, UploaderID: &uploader, Size: info.Size, UploadedAt: uc.now().UTC()}
	if err := uc.meta.Upsert(ctx, meta); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	uc.logger.WithContext(ctx).Info("kb file uploaded",
		zap.String("path", info.Name),
		zap.Int64("size", info.Size))
	return &KBFile{
		Path:       info.Name,
		Size:       info.Size,
		ModTime:    info.ModTime,
		UploaderID: meta.UploaderID,
		UploadedAt: &meta.UploadedAt,
	}, nil
}

// List 列出知识库文件并合并上传记录
func (uc *KnowledgeUseCase) List(ctx context.Context) ([]*KBFile, error) {
	infos, err := uc.files.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrKBStorageFailed)
	}
	metas, err := uc.meta.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	byPath := make(map[string]*FileMeta, len(metas))
	for _, m := range metas {
		byPath[m.Path] = m
	}

	out := make([]*KBFile, 0, len(infos))
	for _, info := range infos {
		f := &KBFile{Path: info.Name, Size: info.Size, ModTime: info.ModTime}
		if m, ok := byPath[info.Name]; ok {
			at := m.UploadedAt
			f.UploaderID, f.UploadedAt = m.UploaderID, &at
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Delete 按策略删除文件及其上传记录，向量索引需重建后才会更新
func (uc *KnowledgeUseCase) Delete(ctx context.Context, p auth.Principal, path string) error {
	var uploader *int64
	meta, err := uc.meta.Get(ctx, path)
	switch {
	case err == nil:
		uploader = meta.UploaderID
	case errors.Is(err, ErrNotFound):
	default:
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	if !uc.policy.CanDeleteKBFile(ctx, p, uploader) {
		return apperrors.New(apperrors.ErrKBPolicyDenied, "delete")
	}

	if err := uc.files.Delete(ctx, path); err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return apperrors.New(apperrors.ErrInvalidParams, "invalid file path")
		}
		return apperrors.Wrap(err, apperrors.ErrKBStorageFailed)
	}
	if err := uc.meta.Delete(ctx, path); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	uc.logger.WithContext(ctx).Info("kb file deleted", zap.String("path", path))
	return nil
}

// Reindex 按策略重建向量索引
func (uc *KnowledgeUseCase) Reindex(ctx context.Context, p auth.Principal, rebuild bool) (*ingest.Report, error) {
	if !uc.policy.CanReindexKB(ctx, p) {
		return nil, apperrors.New(apperrors.ErrKBPolicyDenied, "reindex")
	}
	report, err := uc.indexer.Ingest(ctx, ingest.Options{Rebuild: rebuild})
	if err != nil {
		if errors.Is(err, ingest.ErrNoDocuments) {
			return nil, apperrors.New(apperrors.ErrKBNoDocuments)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrKBIngestFailed)
	}
	return report, nil
}
