// Package archive copies score events from Kafka into the Postgres archive.
package archive

import (
	"context"
	"errors"
	"fmt"

	"bomet/pkg/consumer"
	"bomet/pkg/logger"
	"bomet/pkg/parser"
	"bomet/pkg/worker"

	"go.uber.org/zap"
)

// Pool is the part of the worker pool the service drives.
type Pool interface {
	Start(ctx context.Context)
	Submit(ctx context.Context, job worker.Job) error
	Errors() <-chan error
	Shutdown(ctx context.Context) error
}

type Service struct {
	logger   *logger.Logger
	consumer consumer.Consumer
	pool     Pool
}

func NewService(l *logger.Logger, c consumer.Consumer, p Pool) *Service {
	return &Service{
		logger:   l,
		consumer: c,
		pool:     p,
	}
}

// Start consumes until ctx ends, the consumer fails, or a batch cannot be
// written. The pool is drained before it returns.
func (s *Service) Start(ctx context.Context) (err error) {
	s.logger.Info("starting archive service")

	s.pool.Start(ctx)
	defer func() {
		if shutdownErr := s.Shutdown(context.Background()); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}
	}()

	messages, errs := s.consumer.Consume(ctx)

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return pendingError(errs)
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to handle message at offset %d: %w", msg.Offset, err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("consumer error: %w", err)
			}

		case err := <-s.pool.Errors():
			return fmt.Errorf("archive write failed: %w", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// pendingError picks up an error the consumer reported just before closing
// its message channel.
func pendingError(errs <-chan error) error {
	select {
	case err, ok := <-errs:
		if ok && err != nil {
			return fmt.Errorf("consumer error: %w", err)
		}
	default:
	}
	return nil
}

func (s *Service) handleMessage(ctx context.Context, msg consumer.Message) error {
	ev, err := parser.ParseScoreEvent(msg.Value)
	if err != nil {
		s.logger.Warn("skipping malformed message",
			zap.Error(err),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("payload", msg.Value))

		// The offset still has to move or the partition stalls here.
		return s.pool.Submit(ctx, worker.Job{Message: msg, Skip: true})
	}

	return s.pool.Submit(ctx, worker.Job{
		Row:     parser.ArchiveRow(ev),
		Message: msg,
	})
}

// Shutdown drains the pool, then closes the consumer.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down archive service")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pool: %w", err))
	}
	if err := s.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("consumer: %w", err))
	}
	return errors.Join(errs...)
}
