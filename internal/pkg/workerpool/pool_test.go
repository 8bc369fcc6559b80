package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidWorkers(t *testing.T) {
	_, err := New(&Config{Workers: 0}, logger.NewNop())
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	p, err := New(&Config{Workers: 4}, logger.NewNop())
	require.NoError(t, err)
	defer p.Release()

	var sum atomic.Int64
	errs := p.Run(context.Background(), 10, func(_ context.Context, i int) error {
		if i == 3 {
			return errors.New("bad")
		}
		sum.Add(int64(i))
		return nil
	})

	require.Len(t, errs, 10)
	assert.Error(t, errs[3])
	for i, e := range errs {
		if i != 3 {
			assert.NoError(t, e)
		}
	}
	assert.EqualValues(t, 45-3, sum.Load())

	stats := p.Stats()
	assert.EqualValues(t, 10, stats.Submitted)
	assert.EqualValues(t, 1, stats.Failed)
}

func TestRun_CanceledContext(t *testing.T) {
	p, err := New(&Config{Workers: 2}, logger.NewNop())
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	errs := p.Run(ctx, 3, func(context.Context, int) error {
		called = true
		return nil
	})
	assert.False(t, called)
	for _, e := range errs {
		assert.ErrorIs(t, e, context.Canceled)
	}
}

func TestSubmit_AfterRelease(t *testing.T) {
	p, err := New(&Config{Workers: 1}, logger.NewNop())
	require.NoError(t, err)
	p.Release()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}
