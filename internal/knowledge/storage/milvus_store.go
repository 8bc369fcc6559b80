package storage

import (
	"context"
	"fmt"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/milvus"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"
)

const (
	fieldID        = "id"
	fieldSource    = "source"
	fieldContent   = "content"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"

	maxVarChar = 65535
)

// MilvusStore Milvus 向量存储实现
type MilvusStore struct {
	client *milvus.Client
	logger *logger.Logger
}

// NewMilvusStore 创建 Milvus 向量存储
func NewMilvusStore(client *milvus.Client, lgr *logger.Logger) *MilvusStore {
	if lgr == nil {
		lgr = logger.L()
	}
	return &MilvusStore{client: client, logger: lgr}
}

// EnsureCollection 集合不存在时按固定 schema 创建
func (s *MilvusStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	has, err := s.client.HasCollection(ctx, collection)
	if err != nil || has {
		return err
	}

	schema := entity.NewSchema().
		WithName(collection).
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(fieldSource).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(fieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxVarChar)).
		WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxVarChar)).
		WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimension)))

	if err := s.client.CreateCollection(ctx, schema, fieldEmbedding); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("milvus collection created",
		zap.String("collection", collection),
		zap.Int("dimension", dimension))
	return nil
}

func (s *MilvusStore) DropCollection(ctx context.Context, collection string) error {
	if err := s.client.DropCollection(ctx, collection); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("milvus collection dropped", zap.String("collection", collection))
	return nil
}

func (s *MilvusStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	return s.client.HasCollection(ctx, collection)
}

// Insert 按列写入，metadata 以 JSON 字符串保存
func (s *MilvusStore) Insert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	sources := make([]string, len(records))
	contents := make([]string, len(records))
	metas := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		ids[i] = r.ID
		sources[i] = r.Source
		contents[i] = r.Content
		metas[i] = meta
		vectors[i] = r.Vector
	}

	return s.client.InsertColumns(ctx, collection,
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnVarChar(fieldSource, sources),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnVarChar(fieldMetadata, metas),
		column.NewColumnFloatVector(fieldEmbedding, len(vectors[0]), vectors),
	)
}

// Search 向量检索
func (s *MilvusStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]SearchHit, error) {
	has, err := s.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
	}

	results, err := s.client.Raw().Search(ctx, milvusclient.NewSearchOption(
		collection,
		k,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithOutputFields(fieldSource, fieldContent, fieldMetadata, fieldEmbedding))
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	var hits []SearchHit
	for _, rs := range results {
		sources := rs.GetColumn(fieldSource)
		contents := rs.GetColumn(fieldContent)
		metas := rs.GetColumn(fieldMetadata)
		vecCol, _ := rs.GetColumn(fieldEmbedding).(*column.ColumnFloatVector)

		for i := 0; i < rs.ResultCount; i++ {
			id, _ := rs.IDs.GetAsString(i)
			source, _ := sources.GetAsString(i)
			content, _ := contents.GetAsString(i)
			meta, _ := metas.GetAsString(i)

			hit := SearchHit{
				Record: Record{
					ID:       id,
					Source:   source,
					Content:  content,
					Metadata: decodeMetadata(meta),
				},
				Score: rs.Scores[i],
			}
			if vecCol != nil {
				if v, err := vecCol.Value(i); err == nil {
					hit.Vector = v
				}
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}
