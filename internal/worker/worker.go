package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labshot/labshot/internal/app/process"
	"github.com/labshot/labshot/internal/log"
)

// PoolConfig is the configuration of Pool.
type PoolConfig struct {
	Process *process.Service
	// Workers is the number of concurrent task runners.
	Workers int
	// PollInterval is how long an idle worker waits before asking for work
	// again.
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *PoolConfig) defaults() error {
	if c.Process == nil {
		return fmt.Errorf("process service is required")
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "worker.Pool"})
	return nil
}

// Pool runs a fixed number of workers that drain the task queue.
type Pool struct {
	process      *process.Service
	workers      int
	pollInterval time.Duration
	logger       log.Logger
}

// NewPool creates a new worker pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Pool{
		process:      cfg.Process,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

// Run blocks draining the queue until the context is cancelled. A busy worker
// claims again immediately, an idle one waits a poll interval.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Infof("Starting %d workers", p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()

	p.logger.Infof("All workers stopped")

	return nil
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	logger := p.logger.WithValues(log.Kv{"worker": id})

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.process.ProcessNext(ctx)
		if err != nil {
			logger.Errorf("Pipeline error: %s", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}
