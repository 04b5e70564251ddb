// Package worker batches archive rows across a fixed set of goroutines and
// commits their offsets once the batch is stored.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"bomet/pkg/consumer"
	"bomet/pkg/logger"
	"bomet/pkg/metrics"
	"bomet/pkg/retry"
	"bomet/pkg/writer"

	"go.uber.org/zap"
)

// ErrStopped is returned by Submit after Shutdown.
var ErrStopped = errors.New("worker pool stopped")

// Job is one archive row and the message that carried it. A Skip job has
// no row; its offset is committed in order with the rows around it.
type Job struct {
	Row     writer.ArchiveRow
	Message consumer.Message
	Skip    bool
}

type Config struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	// Retry bounds the attempts of each batch write.
	Retry retry.Options
}

// WorkerPool routes every partition to one worker so offsets on a
// partition are committed in order.
type WorkerPool struct {
	logger   *logger.Logger
	writer   writer.ArchiveWriter
	consumer consumer.Consumer
	cfg      Config

	inputs []chan Job
	errs   chan error
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(l *logger.Logger, w writer.ArchiveWriter, c consumer.Consumer, cfg Config) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	inputs := make([]chan Job, cfg.Workers)
	for i := range inputs {
		inputs[i] = make(chan Job, cfg.BatchSize)
	}

	return &WorkerPool{
		logger:   l,
		writer:   w,
		consumer: c,
		cfg:      cfg,
		inputs:   inputs,
		errs:     make(chan error, 1),
	}
}

// Start launches the workers. They flush what they hold when ctx ends.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := range p.inputs {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Errors yields the first batch that could not be written. Later offsets
// are not committed once a write has failed, so the owner should stop.
func (p *WorkerPool) Errors() <-chan error {
	return p.errs
}

// Submit hands job to the worker owning its partition.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	input := p.inputs[workerFor(job.Message.Partition, len(p.inputs))]
	select {
	case input <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func workerFor(partition, workers int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % workers
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	buffer := writer.NewInMemoryBuffer(p.cfg.BatchSize)
	ticker := time.NewTicker(max(p.cfg.FlushInterval/2, time.Millisecond))
	defer ticker.Stop()

	failed := false
	flush := func(ctx context.Context) {
		if failed {
			buffer.Flush()
			return
		}
		if err := p.flush(ctx, log, buffer.Flush()); err != nil {
			failed = true
			select {
			case p.errs <- err:
			default:
			}
		}
	}

	for {
		select {
		case job, ok := <-p.inputs[id]:
			if !ok {
				flush(context.Background())
				return
			}
			metrics.ArchiveMessagesConsumedTotal.Inc()
			if buffer.Add(writer.Record{Row: job.Row, Message: job.Message, Skip: job.Skip}) {
				flush(ctx)
			}

		case <-ticker.C:
			if buffer.ShouldFlush(p.cfg.FlushInterval) {
				flush(ctx)
			}

		case <-ctx.Done():
			flush(context.Background())
			return
		}
	}
}

func (p *WorkerPool) flush(ctx context.Context, log *logger.Logger, records []writer.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := writer.Rows(records)
	if len(rows) == 0 {
		p.commit(ctx, log, records)
		return nil
	}

	opts := p.cfg.Retry
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Warn("archive write failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("wait", wait))
	}

	start := time.Now()
	err := retry.Do(ctx, func() error {
		if err := p.writer.WriteBatch(ctx, rows); err != nil {
			metrics.ArchiveWriteErrorsTotal.Inc()
			return err
		}
		return nil
	}, opts)
	if err != nil {
		last := records[len(records)-1].Message
		log.Error("failed to write batch", err,
			zap.Int("rows", len(rows)),
			zap.Int("partition", last.Partition),
			zap.Int64("offset", last.Offset))
		return err
	}
	metrics.ArchiveWriteLatency.Observe(time.Since(start).Seconds())
	metrics.ArchiveBatchWritesTotal.Inc()

	// Offsets move only after the rows are stored.
	p.commit(ctx, log, records)
	log.Debug("batch archived", zap.Int("rows", len(rows)))
	return nil
}

func (p *WorkerPool) commit(ctx context.Context, log *logger.Logger, records []writer.Record) {
	for _, r := range records {
		if err := p.consumer.Commit(ctx, r.Message); err != nil {
			log.Error("failed to commit offset", err,
				zap.Int("partition", r.Message.Partition), zap.Int64("offset", r.Message.Offset))
		}
	}
}

// Shutdown stops accepting jobs and waits for the workers to flush.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, in := range p.inputs {
			close(in)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
