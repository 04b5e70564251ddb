// Package feed republishes score changes from the store's change stream as
// score events on Kafka.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bomet/pkg/changestream"
	"bomet/pkg/kv"
	"bomet/pkg/logger"
	"bomet/pkg/metrics"
	"bomet/pkg/parser"
	"bomet/pkg/producer"
	"bomet/pkg/retry"
	"bomet/pkg/score"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type Config struct {
	// TokenKey names the resume token in the KV store.
	TokenKey string
	Retry    retry.Options
}

// Service moves change stream events to Kafka. The resume token advances
// only past events that Kafka has acknowledged, so a restart may republish
// the last event but never skips one.
type Service struct {
	logger   *logger.Logger
	tokens   kv.Store
	producer producer.Producer
	watcher  changestream.Watcher
	cfg      Config
}

func NewService(
	l *logger.Logger,
	tokens kv.Store,
	p producer.Producer,
	w changestream.Watcher,
	cfg Config,
) *Service {
	return &Service{
		logger:   l,
		tokens:   tokens,
		producer: p,
		watcher:  w,
		cfg:      cfg,
	}
}

// Stop closes the change stream and flushes the producer.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("stopping feed service")

	var errs []error
	if err := s.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
	}
	if err := s.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	return errors.Join(errs...)
}

// Start runs until ctx ends or an event cannot be published.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting feed service", zap.String("token_key", s.cfg.TokenKey))

	defer func() {
		if err := s.Stop(context.Background()); err != nil {
			s.logger.Error("error during service stop", err)
		}
	}()

	resumeToken, err := s.loadToken(ctx)
	if err != nil {
		return err
	}
	if resumeToken == nil {
		s.logger.Info("no resume token, starting from now")
	}

	changes, errs := s.watcher.Watch(ctx, resumeToken)

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return pendingError(errs)
			}
			if err := s.process(ctx, change); err != nil {
				s.logger.Error("failed to process change", err, zap.String("event_id", change.EventID))
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("watcher error: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// pendingError picks up an error the watcher reported just before closing
// its changes channel.
func pendingError(errs <-chan error) error {
	select {
	case err, ok := <-errs:
		if ok && err != nil {
			return fmt.Errorf("watcher error: %w", err)
		}
	default:
	}
	return nil
}

func (s *Service) loadToken(ctx context.Context) (bson.Raw, error) {
	data, ok, err := s.tokens.Get(ctx, s.cfg.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume token: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}

	token := bson.Raw(data)
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("stored resume token is corrupt: %w", err)
	}
	return token, nil
}

// ToEvent converts a change into the event published for it.
func ToEvent(c changestream.Change) (score.Event, error) {
	if c.Err != nil {
		return score.Event{}, c.Err
	}
	ev := score.Event{
		ID:         c.EventID,
		RecordID:   c.RecordID,
		OccurredAt: c.ClusterTime.UTC(),
	}
	if c.ClusterTime.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	switch c.Operation {
	case changestream.OpInsert:
		ev.Type = score.Submitted
		ev.Record = c.Record
	case changestream.OpDelete:
		ev.Type = score.Removed
	default:
		return score.Event{}, fmt.Errorf("unsupported operation %q", c.Operation)
	}
	return ev, nil
}

func (s *Service) process(ctx context.Context, c changestream.Change) error {
	ev, err := ToEvent(c)
	if err == nil {
		var payload []byte
		payload, err = parser.EncodeScoreEvent(ev)
		if err == nil {
			if err := s.publish(ctx, ev, payload); err != nil {
				return err
			}
		}
	}
	if err != nil {
		// A document the leaderboard could not have written. Skip it so the
		// feed does not stall on it.
		s.logger.Warn("skipping change",
			zap.Error(err),
			zap.String("event_id", c.EventID),
			zap.String("record_id", c.RecordID))
	}

	err = retry.Do(ctx, func() error {
		return s.tokens.Put(ctx, s.cfg.TokenKey, c.ResumeToken)
	}, s.cfg.Retry)
	if err != nil {
		return fmt.Errorf("failed to save resume token after retries: %w", err)
	}
	metrics.FeedTokenSavesTotal.Inc()

	s.logger.Debug("processed change", zap.String("event_id", c.EventID), zap.String("op", c.Operation))
	return nil
}

func (s *Service) publish(ctx context.Context, ev score.Event, payload []byte) error {
	msg := producer.Message{
		Key:     []byte(ev.RecordID),
		Value:   payload,
		Headers: map[string]string{parser.EventTypeHeader: string(ev.Type)},
	}

	opts := s.cfg.Retry
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.FeedPublishErrorsTotal.Inc()
		s.logger.Warn("publish failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("wait", wait))
	}

	err := retry.Do(ctx, func() error {
		return producer.Publish(ctx, s.producer, msg)
	}, opts)
	if err != nil {
		metrics.FeedPublishErrorsTotal.Inc()
		return fmt.Errorf("failed to publish event to kafka after retries: %w", err)
	}

	metrics.FeedEventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
	return nil
}
