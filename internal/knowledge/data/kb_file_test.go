package data

import (
	"context"
	"testing"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/knowledge/biz"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMetaRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewFileMetaRepo(dbtest.New(t, Models()...))

	_, err := repo.Get(ctx, "faq.md")
	assert.ErrorIs(t, err, biz.ErrNotFound)

	alice, bob := int64(1), int64(2)
	at := time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &biz.FileMeta{Path: "faq.md", UploaderID: &alice, Size: 10, UploadedAt: at}))
	require.NoError(t, repo.Upsert(ctx, &biz.FileMeta{Path: "a.txt", UploaderID: &alice, Size: 3, UploadedAt: at}))

	t.Run("重复上传覆盖", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &biz.FileMeta{Path: "faq.md", UploaderID: &bob, Size: 42, UploadedAt: at.Add(time.Hour)}))
		meta, err := repo.Get(ctx, "faq.md")
		require.NoError(t, err)
		assert.Equal(t, bob, *meta.UploaderID)
		assert.EqualValues(t, 42, meta.Size)
		assert.True(t, meta.UploadedAt.Equal(at.Add(time.Hour)))
	})

	metas, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "a.txt", metas[0].Path)

	require.NoError(t, repo.Delete(ctx, "faq.md"))
	require.NoError(t, repo.Delete(ctx, "faq.md"))
	_, err = repo.Get(ctx, "faq.md")
	assert.ErrorIs(t, err, biz.ErrNotFound)
}
