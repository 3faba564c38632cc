package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is one independent unit of work.
type Task struct {
	ID string
	Fn func(ctx context.Context) error
}

type Config struct {
	Name        string
	Size        int
	TaskTimeout time.Duration
	Logger      *zap.Logger
	// Observe, when set, is told the outcome of every task ("ok", "failed", "panic").
	Observe func(pool, outcome string)
}

// Pool runs batches of tasks with at most Size running at once. A failing task
// never stops the rest of the batch.
type Pool struct {
	name        string
	size        int
	taskTimeout time.Duration
	logger      *zap.Logger
	observe     func(pool, outcome string)
}

type Stats struct {
	Total     int
	Completed int
	Failed    int
}

func NewPool(cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		name:        cfg.Name,
		size:        cfg.Size,
		taskTimeout: cfg.TaskTimeout,
		logger:      cfg.Logger,
		observe:     cfg.Observe,
	}
}

func (p *Pool) Name() string { return p.name }
func (p *Pool) Size() int    { return p.size }

// Run executes every task and blocks until all of them have returned.
// A zero TaskTimeout leaves tasks bounded only by ctx.
func (p *Pool) Run(ctx context.Context, tasks []Task) Stats {
	var g errgroup.Group
	g.SetLimit(p.size)

	var completed, failed int64
	start := time.Now()

	for _, task := range tasks {
		g.Go(func() error {
			if err := p.execute(ctx, task); err != nil {
				atomic.AddInt64(&failed, 1)
				p.logger.Warn("Task failed",
					zap.String("pool", p.name),
					zap.String("task_id", task.ID),
					zap.Error(err))
				return nil
			}
			atomic.AddInt64(&completed, 1)
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{
		Total:     len(tasks),
		Completed: int(completed),
		Failed:    int(failed),
	}
	p.logger.Info("Batch finished",
		zap.String("pool", p.name),
		zap.Int("total", stats.Total),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", time.Since(start)))
	return stats
}

func (p *Pool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.record("panic")
			return
		}
		if err != nil {
			p.record("failed")
		} else {
			p.record("ok")
		}
	}()

	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}
	return task.Fn(ctx)
}

func (p *Pool) record(outcome string) {
	if p.observe != nil {
		p.observe(p.name, outcome)
	}
}
