package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/storage"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/metrics"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letterEmbedder 以 a-z 字母频次作为向量
type letterEmbedder struct {
	fail bool
}

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *letterEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(s) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		v[0] += 0.01
		out[i] = v
	}
	return out, nil
}

func (e *letterEmbedder) Dimension() int { return 26 }
func (e *letterEmbedder) Model() string  { return "letters" }

type fixture struct {
	root     string
	files    *storage.LocalStore
	vectors  *storage.ChromemStore
	embedder *letterEmbedder
	ingestor *Ingestor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	files, err := storage.NewLocalStore(root, logger.NewNop())
	require.NoError(t, err)
	vectors, err := storage.NewChromemStore("", logger.NewNop())
	require.NoError(t, err)
	pool, err := workerpool.New(&workerpool.Config{Workers: 3}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	emb := &letterEmbedder{}
	in, err := NewIngestor(Config{Chunking: chunker.Config{ChunkSize: 60, ChunkOverlap: 10, Method: chunker.MethodAuto}},
		files, vectors, emb, pool, metrics.New(), logger.NewNop())
	require.NoError(t, err)
	return &fixture{root: root, files: files, vectors: vectors, embedder: emb, ingestor: in}
}

func (f *fixture) write(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, name), data, 0o644))
}

func (f *fixture) all(t *testing.T) []storage.SearchHit {
	t.Helper()
	q := make([]float32, 26)
	q[0] = 1
	hits, err := f.vectors.Search(context.Background(), DefaultCollection, q, 1000)
	require.NoError(t, err)
	return hits
}

func TestNewIngestor_InvalidChunking(t *testing.T) {
	_, err := NewIngestor(Config{Chunking: chunker.Config{ChunkSize: 10, ChunkOverlap: 10, Method: chunker.MethodAuto}},
		nil, nil, nil, nil, nil, logger.NewNop())
	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "guide.md", []byte("# Guide\n\nalpha beta gamma delta\n\n## Setup\n\ninstall the tool and run it"))
	f.write(t, "notes.txt", []byte("plain notes about nothing in particular"))
	f.write(t, "broken.txt", []byte{0xff, 0xfe})
	f.write(t, "manual.pdf", []byte("%PDF-1.4"))

	report, err := f.ingestor.Ingest(ctx, Options{Rebuild: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, report.Collection)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 2, report.Documents)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken.txt", report.Failures[0].Source)
	assert.ErrorIs(t, report.Failures[0].Err, chunker.ErrInvalidEncoding)

	hits := f.all(t)
	assert.Len(t, hits, report.Chunks)

	var setup *storage.SearchHit
	for i := range hits {
		if strings.Contains(hits[i].Content, "install") {
			setup = &hits[i]
		}
	}
	require.NotNil(t, setup)
	assert.Equal(t, f.files.Source("guide.md"), setup.Source)
	assert.Equal(t, "Guide", setup.Metadata["h1"])
	assert.Equal(t, "Setup", setup.Metadata["h2"])
	assert.Equal(t, "auto", setup.Metadata["chunking_method"])
	assert.Contains(t, setup.Metadata, "span_start")
	assert.Equal(t, ChunkID(setup.Source, 1), setup.ID)
}

func TestIngest_RebuildDropsStaleChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.txt", []byte("first file"))
	f.write(t, "b.txt", []byte("second file"))

	_, err := f.ingestor.Ingest(ctx, Options{Rebuild: true})
	require.NoError(t, err)
	assert.Len(t, f.all(t), 2)

	require.NoError(t, f.files.Delete(ctx, "b.txt"))
	report, err := f.ingestor.Ingest(ctx, Options{Rebuild: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)
	assert.Len(t, f.all(t), 1)
}

func TestIngest_NoDocuments(t *testing.T) {
	f := newFixture(t)
	f.write(t, "broken.md", []byte{0xc3, 0x28})

	report, err := f.ingestor.Ingest(context.Background(), Options{Rebuild: true})
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Len(t, report.Failures, 1)

	has, err := f.vectors.HasCollection(context.Background(), DefaultCollection)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", []byte("some text"))
	f.embedder.fail = true

	_, err := f.ingestor.Ingest(context.Background(), Options{Rebuild: true})
	assert.ErrorContains(t, err, "embedding service down")
}

func TestClearVectorStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.txt", []byte("some text"))
	_, err := f.ingestor.Ingest(ctx, Options{Rebuild: true})
	require.NoError(t, err)

	require.NoError(t, f.ingestor.ClearVectorStore(ctx))
	has, err := f.vectors.HasCollection(ctx, DefaultCollection)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestChunkID_Stable(t *testing.T) {
	assert.Equal(t, ChunkID("a.md", 0), ChunkID("a.md", 0))
	assert.NotEqual(t, ChunkID("a.md", 0), ChunkID("a.md", 1))
}
