package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/embedding"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/loader"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/metrics"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// DefaultCollection 默认向量集合名
const DefaultCollection = "RAGChunk"

// writeBatch 每批向量化并写入的分块数
const writeBatch = embedding.DefaultBatchSize

var ErrNoDocuments = errors.New("ingest: no documents found in knowledge base")

// chunkNamespace 分块 ID 的 UUIDv5 命名空间，相同来源与序号得到相同 ID
var chunkNamespace = uuid.MustParse("6f1c2a52-3f1e-4a7e-9c55-2b8f0c7d9a11")

// Options 单次导入参数
type Options struct {
	Rebuild bool // 先删除集合再写入
}

// Report 导入结果
type Report struct {
	Collection string
	Files      int
	Documents  int
	Chunks     int
	Failures   []loader.Failure
	Duration   time.Duration
}

// Config Ingestor 配置
type Config struct {
	Collection string
	Chunking   chunker.Config
	Tokens     chunker.TokenCounter
}

// Ingestor 知识库导入：读取文件 -> 分块 -> 向量化 -> 写入向量库
type Ingestor struct {
	cfg      Config
	files    storage.FileStore
	vectors  storage.VectorStore
	embedder embedding.Embedder
	pool     *workerpool.Pool
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewIngestor 创建 Ingestor，metrics 可为 nil
func NewIngestor(
	cfg Config,
	files storage.FileStore,
	vectors storage.VectorStore,
	embedder embedding.Embedder,
	pool *workerpool.Pool,
	m *metrics.Metrics,
	lgr *logger.Logger,
) (*Ingestor, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}
	if lgr == nil {
		lgr = logger.L()
	}
	return &Ingestor{
		cfg:      cfg,
		files:    files,
		vectors:  vectors,
		embedder: embedder,
		pool:     pool,
		metrics:  m,
		logger:   lgr.Named("ingest"),
	}, nil
}

// Collection 目标集合
func (in *Ingestor) Collection() string {
	return in.cfg.Collection
}

type fileResult struct {
	chunks []chunker.Chunk
	err    error
}

// Ingest 导入知识库全部受支持的文件。
// 单个文件读取或分块失败只记入 Report.Failures；没有任何可用文档时返回 ErrNoDocuments。
func (in *Ingestor) Ingest(ctx context.Context, opts Options) (report *Report, err error) {
	start := time.Now()
	log := in.logger.WithContext(ctx)
	report = &Report{Collection: in.cfg.Collection}
	defer func() {
		report.Duration = time.Since(start)
		in.metrics.ObserveIngest(report.Duration, err)
	}()

	all, err := in.files.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list kb files: %w", err)
	}
	var names []string
	for _, f := range all {
		if loader.IsSupported(f.Name) {
			names = append(names, f.Name)
		}
	}
	report.Files = len(names)

	results := make([]fileResult, len(names))
	errs := in.pool.Run(ctx, len(names), func(ctx context.Context, i int) error {
		chunks, err := in.chunkFile(ctx, names[i])
		results[i] = fileResult{chunks: chunks, err: err}
		return err
	})
	if err := ctx.Err(); err != nil {
		return report, err
	}

	var chunks []chunker.Chunk
	for i, name := range names {
		if errs[i] != nil {
			report.Failures = append(report.Failures, loader.Failure{Source: name, Err: errs[i]})
			log.Warn("skip kb file", zap.String("file", name), zap.Error(errs[i]))
			continue
		}
		report.Documents++
		chunks = append(chunks, results[i].chunks...)
	}
	if report.Documents == 0 {
		return report, ErrNoDocuments
	}

	if opts.Rebuild {
		if err := in.vectors.DropCollection(ctx, in.cfg.Collection); err != nil {
			return report, err
		}
	}
	if err := in.vectors.EnsureCollection(ctx, in.cfg.Collection, in.embedder.Dimension()); err != nil {
		return report, err
	}

	for startIdx := 0; startIdx < len(chunks); startIdx += writeBatch {
		batch := chunks[startIdx:min(startIdx+writeBatch, len(chunks))]
		if err := in.writeBatch(ctx, batch); err != nil {
			return report, err
		}
		report.Chunks += len(batch)
	}

	log.Info("ingest finished",
		zap.String("collection", report.Collection),
		zap.Int("files", report.Files),
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// chunkFile 读取并分块单个文件，每个文件独立定位区间
func (in *Ingestor) chunkFile(ctx context.Context, name string) ([]chunker.Chunk, error) {
	data, err := in.files.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	doc, err := loader.LoadBytes(in.files.Source(name), data)
	if err != nil {
		return nil, err
	}
	chunks, err := chunker.ChunkDocuments([]chunker.Document{doc}, in.cfg.Chunking, chunker.Options{
		IncludePreviewMetadata: true,
		IncludeSpans:           true,
		TokenCounter:           in.cfg.Tokens,
	})
	if err != nil {
		return nil, err
	}

	strategy := chunker.SelectStrategy(in.cfg.Chunking.Method, doc.Source).Name()
	in.metrics.ObserveChunks(strategy, len(chunks))
	resolved := 0
	for _, c := range chunks {
		if c.Metadata.HasSpan() {
			resolved++
		}
	}
	in.metrics.ObserveSpans(resolved, len(chunks)-resolved)
	return chunks, nil
}

func (in *Ingestor) writeBatch(ctx context.Context, batch []chunker.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vecs, err := in.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrEmptyResponse, len(vecs), len(batch))
	}

	records := make([]storage.Record, len(batch))
	for i, c := range batch {
		records[i] = storage.Record{
			ID:       ChunkID(c.Metadata.Source, c.Metadata.ChunkIndex),
			Vector:   vecs[i],
			Content:  c.Content,
			Source:   c.Metadata.Source,
			Metadata: c.Metadata.ToMap(),
		}
	}
	return in.vectors.Insert(ctx, in.cfg.Collection, records)
}

// ClearVectorStore 删除向量集合
func (in *Ingestor) ClearVectorStore(ctx context.Context) error {
	if err := in.vectors.DropCollection(ctx, in.cfg.Collection); err != nil {
		return err
	}
	in.logger.WithContext(ctx).Info("vector store cleared", zap.String("collection", in.cfg.Collection))
	return nil
}

// ChunkID 分块的稳定 ID
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", source, index))).String()
}
