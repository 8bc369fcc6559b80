package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config Worker Pool 配置
type Config struct {
	Workers int `mapstructure:"workers"` // worker 数量
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{Workers: 8}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Running   int64
}

// Pool 基于 ants 的 worker pool
type Pool struct {
	pool   *ants.Pool
	logger *logger.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	running   atomic.Int64
}

// New 创建 Worker Pool
func New(cfg *Config, log *logger.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workerpool: workers must be > 0, got %d", cfg.Workers)
	}
	if log == nil {
		log = logger.L()
	}

	p := &Pool{logger: log}
	antsPool, err := ants.NewPool(cfg.Workers,
		ants.WithPanicHandler(func(v interface{}) {
			p.failed.Add(1)
			log.Error("worker panic", zap.Any("error", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool
	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		p.running.Add(1)
		defer p.running.Add(-1)
		task()
		p.completed.Add(1)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Run 并发执行 n 个任务并等待全部结束。
// fn 返回的错误按下标收集，不会中断其他任务；ctx 取消后尚未开始的任务不再执行。
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			if err := fn(ctx, i); err != nil {
				p.failed.Add(1)
				errs[i] = err
			}
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return errs
}

// Stats 当前统计
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Running:   p.running.Load(),
	}
}

// Cap 容量
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Release 关闭 pool
func (p *Pool) Release() {
	p.pool.Release()
	p.logger.Debug("worker pool released", zap.Int64("completed", p.completed.Load()))
}
