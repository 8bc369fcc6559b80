package storage

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const chromemMetadataKey = "metadata"

// ChromemStore 进程内向量存储，persistPath 非空时持久化到磁盘
type ChromemStore struct {
	db     *chromem.DB
	mu     sync.Mutex
	logger *logger.Logger
}

// NewChromemStore 创建 chromem 向量存储
func NewChromemStore(persistPath string, lgr *logger.Logger) (*ChromemStore, error) {
	if lgr == nil {
		lgr = logger.L()
	}
	db := chromem.NewDB()
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", persistPath, err)
		}
	}
	return &ChromemStore{db: db, logger: lgr}, nil
}

// noEmbed 写入与查询都直接使用外部向量
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: embedding must be precomputed")
}

// EnsureCollection 集合不存在时创建。chromem 不固定维度
func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.GetOrCreateCollection(collection, map[string]string{"dimension": fmt.Sprint(dimension)}, noEmbed); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	return nil
}

// DropCollection 删除集合
func (s *ChromemStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db.GetCollection(collection, noEmbed) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", collection, err)
	}
	s.logger.WithContext(ctx).Info("chromem collection dropped", zap.String("collection", collection))
	return nil
}

// HasCollection 集合是否存在
func (s *ChromemStore) HasCollection(_ context.Context, collection string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetCollection(collection, noEmbed) != nil, nil
}

// Insert 批量写入
func (s *ChromemStore) Insert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	coll := s.db.GetCollection(collection, noEmbed)
	s.mu.Unlock()
	if coll == nil {
		return fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Vector,
			Metadata: map[string]string{
				fieldSource:        r.Source,
				chromemMetadataKey: meta,
			},
		}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// Search 向量检索，k 超过集合大小时返回全部
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]SearchHit, error) {
	s.mu.Lock()
	coll := s.db.GetCollection(collection, noEmbed)
	s.mu.Unlock()
	if coll == nil {
		return nil, fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
	}

	n := min(k, coll.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{
			Record: Record{
				ID:       r.ID,
				Vector:   r.Embedding,
				Content:  r.Content,
				Source:   r.Metadata[fieldSource],
				Metadata: decodeMetadata(r.Metadata[chromemMetadataKey]),
			},
			Score: r.Similarity,
		}
	}
	return hits, nil
}
