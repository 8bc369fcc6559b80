package service

import (
	"context"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/chatbot-rag/internal/auth/middleware"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/biz"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/response"
	"go.uber.org/zap"
)

// Auditor 审计日志记录
type Auditor interface {
	Log(ctx context.Context, userID *int64, action, target string, details any) error
}

// KnowledgeService 知识库文件管理接口
type KnowledgeService struct {
	uc       *biz.KnowledgeUseCase
	chunking chunker.Config
	auditor  Auditor
	logger   *logger.Logger
}

// NewKnowledgeService 创建知识库服务，chunking 为预览的默认分块配置
func NewKnowledgeService(uc *biz.KnowledgeUseCase, chunking chunker.Config, auditor Auditor, log *logger.Logger) *KnowledgeService {
	return &KnowledgeService{
		uc:       uc,
		chunking: chunking,
		auditor:  auditor,
		logger:   log,
	}
}

type ReindexRequest struct {
	Rebuild *bool `json:"rebuild"`
}

type ReindexResponse struct {
	Collection string   `json:"collection"`
	Files      int      `json:"files"`
	Documents  int      `json:"documents"`
	Chunks     int      `json:"chunks"`
	Failures   []string `json:"failures"`
	DurationMS int64    `json:"duration_ms"`
}

// ListFiles 知识库文件列表
func (s *KnowledgeService) ListFiles(c *gin.Context) {
	files, err := s.uc.List(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, files)
}

// UploadFiles 上传一个或多个文件（表单字段 file），只保存不入库
func (s *KnowledgeService) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "invalid multipart form")
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		response.BadRequest(c, "field 'file' is required")
		return
	}

	ctx := c.Request.Context()
	p, _ := middleware.CurrentPrincipal(c)
	limit := s.uc.MaxUploadSize()

	saved := make([]*biz.KBFile, 0, len(headers))
	for _, h := range headers {
		if h.Size > limit {
			response.HandleError(c, apperrors.New(apperrors.ErrKBFileTooLarge, h.Filename))
			return
		}
		f, err := h.Open()
		if err != nil {
			response.BadRequest(c, "failed to read "+h.Filename)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, limit+1))
		f.Close()
		if err != nil {
			response.BadRequest(c, "failed to read "+h.Filename)
			return
		}

		file, err := s.uc.Upload(ctx, p, h.Filename, data)
		if err != nil {
			response.HandleError(c, err)
			return
		}
		s.audit(ctx, p.UserID, "kb.upload", file.Path, map[string]any{"size_bytes": file.Size})
		saved = append(saved, file)
	}
	response.Created(c, saved)
}

// DeleteFile 删除文件，?path= 为列表中的相对路径
func (s *KnowledgeService) DeleteFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		response.BadRequest(c, "path is required")
		return
	}
	ctx := c.Request.Context()
	p, _ := middleware.CurrentPrincipal(c)
	if err := s.uc.Delete(ctx, p, path); err != nil {
		response.HandleError(c, err)
		return
	}
	s.audit(ctx, p.UserID, "kb.delete", path, nil)
	response.Success(c, nil)
}

// Reindex 重建向量索引，rebuild 默认 true
func (s *KnowledgeService) Reindex(c *gin.Context) {
	var req ReindexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	rebuild := true
	if req.Rebuild != nil {
		rebuild = *req.Rebuild
	}

	ctx := c.Request.Context()
	p, _ := middleware.CurrentPrincipal(c)
	report, err := s.uc.Reindex(ctx, p, rebuild)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	resp := ReindexResponse{
		Collection: report.Collection,
		Files:      report.Files,
		Documents:  report.Documents,
		Chunks:     report.Chunks,
		Failures:   make([]string, 0, len(report.Failures)),
		DurationMS: report.Duration.Milliseconds(),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, f.Error())
	}
	s.audit(ctx, p.UserID, "kb.reindex", report.Collection, map[string]any{
		"rebuild":  rebuild,
		"files":    report.Files,
		"chunks":   report.Chunks,
		"failures": len(report.Failures),
	})
	response.Success(c, resp)
}

// Preview 分块预览，可用 chunk_size / chunk_overlap / method 覆盖默认配置
func (s *KnowledgeService) Preview(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		response.BadRequest(c, "path is required")
		return
	}
	cfg, err := s.previewConfig(c)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	preview, err := s.uc.Preview(c.Request.Context(), path, cfg)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, preview)
}

func (s *KnowledgeService) previewConfig(c *gin.Context) (chunker.Config, error) {
	cfg := s.chunking
	if v := c.Query("chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, apperrors.New(apperrors.ErrKBInvalidChunkConfig, "chunk_size must be an integer")
		}
		cfg.ChunkSize = n
	}
	if v := c.Query("chunk_overlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, apperrors.New(apperrors.ErrKBInvalidChunkConfig, "chunk_overlap must be an integer")
		}
		cfg.ChunkOverlap = n
	}
	if v := c.Query("method"); v != "" {
		m, err := chunker.ParseMethod(v)
		if err != nil {
			return cfg, apperrors.New(apperrors.ErrKBInvalidChunkConfig, err.Error())
		}
		cfg.Method = m
	}
	return cfg, nil
}

func (s *KnowledgeService) audit(ctx context.Context, userID int64, action, target string, details any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, &userID, action, target, details); err != nil {
		s.logger.WithContext(ctx).Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// RegisterRoutes 注册路由，group 需已挂载认证
func (s *KnowledgeService) RegisterRoutes(group *gin.RouterGroup) {
	kb := group.Group("/kb")
	kb.GET("/files", s.ListFiles)
	kb.POST("/files", s.UploadFiles)
	kb.DELETE("/files", s.DeleteFile)
	kb.GET("/preview", s.Preview)
	kb.POST("/reindex", s.Reindex)
}
