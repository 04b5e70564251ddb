package leaderboard

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"bomet/pkg/logger"
	"bomet/pkg/metrics"
	"bomet/pkg/score"
	"bomet/pkg/store"

	"go.uber.org/zap"
)

// Submission is an unvalidated score submission.
type Submission struct {
	PlayerName string
	// Score is nil when the caller did not send one.
	Score *float64
	// SubmittedAt defaults to the current time when zero.
	SubmittedAt time.Time
	Stats       json.RawMessage
}

// Config tunes the service
type Config struct {
	AdminKey         string
	MaxLimit         int
	OperationTimeout time.Duration
}

// Service validates submissions, ranks reads and guards the admin clear.
type Service struct {
	logger   *logger.Logger
	store    store.ScoreStore
	adminKey []byte
	maxLimit int
	timeout  time.Duration
	now      func() time.Time
}

// NewService creates a new leaderboard Service instance
func NewService(l *logger.Logger, s store.ScoreStore, cfg Config) *Service {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	return &Service{
		logger:   l,
		store:    s,
		adminKey: []byte(cfg.AdminKey),
		maxLimit: cfg.MaxLimit,
		timeout:  cfg.OperationTimeout,
		now:      time.Now,
	}
}

// SubmitScore validates sub and appends it to the store.
func (s *Service) SubmitScore(ctx context.Context, sub Submission) (score.Record, error) {
	if err := validate(sub); err != nil {
		metrics.ScoreValidationErrorsTotal.Inc()
		s.logger.Warn("score submission rejected",
			zap.String("player", sub.PlayerName),
			zap.String("reason", err.Error()))
		return score.Record{}, err
	}

	at := sub.SubmittedAt
	if at.IsZero() {
		at = s.now()
	}

	rec := score.Record{
		PlayerName:  sub.PlayerName,
		Score:       *sub.Score,
		SubmittedAt: at.UTC().Truncate(time.Millisecond),
		Stats:       sub.Stats,
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	saved, err := s.store.Insert(opCtx, rec)
	if err != nil {
		return score.Record{}, s.storeFailure("insert", err)
	}

	metrics.ScoresSubmittedTotal.Inc()
	s.logger.Info("score saved",
		zap.String("id", saved.ID),
		zap.String("player", saved.PlayerName),
		zap.Float64("score", saved.Score))
	return saved, nil
}

// TopScores returns the highest ranked records. A non-positive limit means
// score.DefaultLimit.
func (s *Service) TopScores(ctx context.Context, limit int) ([]score.Record, error) {
	limit = s.normalizeLimit(limit)

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.store.Top(opCtx, limit)
	if err != nil {
		return nil, s.storeFailure("top", err)
	}
	if records == nil {
		records = []score.Record{}
	}

	s.logger.Debug("leaderboard read", zap.Int("limit", limit), zap.Int("returned", len(records)))
	return records, nil
}

// ClearLeaderboard deletes every record when key matches the admin key.
func (s *Service) ClearLeaderboard(ctx context.Context, key string) (int64, error) {
	if !s.authorized(key) {
		metrics.LeaderboardClearsTotal.WithLabelValues("unauthorized").Inc()
		s.logger.Warn("unauthorized leaderboard clear attempt",
			zap.Bool("key_present", key != ""),
			zap.Bool("admin_configured", len(s.adminKey) > 0))
		return 0, ErrUnauthorized
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deleted, err := s.store.DeleteAll(opCtx)
	if err != nil {
		metrics.LeaderboardClearsTotal.WithLabelValues("error").Inc()
		return 0, s.storeFailure("delete_all", err)
	}

	metrics.LeaderboardClearsTotal.WithLabelValues("cleared").Inc()
	s.logger.Info("leaderboard cleared", zap.Int64("deleted_count", deleted))
	return deleted, nil
}

// Ping checks the store within the operation timeout.
func (s *Service) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Ping(opCtx); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

// authorized fails closed when no admin key is configured.
func (s *Service) authorized(key string) bool {
	if len(s.adminKey) == 0 || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), s.adminKey) == 1
}

func (s *Service) normalizeLimit(limit int) int {
	if limit <= 0 {
		return score.DefaultLimit
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

func (s *Service) storeFailure(op string, err error) error {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	s.logger.Error("score store operation failed", err, zap.String("op", op))
	return &StoreError{Op: op, Err: err}
}

func validate(sub Submission) error {
	if strings.TrimSpace(sub.PlayerName) == "" {
		return &ValidationError{Field: "playerName", Reason: "a non-empty name is required"}
	}
	if sub.Score == nil {
		return &ValidationError{Field: "score", Reason: "a numeric score is required"}
	}
	if !score.IsFinite(*sub.Score) {
		return &ValidationError{Field: "score", Reason: "score must be a finite number"}
	}
	return nil
}

// dateLayouts are tried in order. Layouts without a zone read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses a client supplied ISO-8601 timestamp. Unparsable values
// are rejected rather than replaced with the current time.
func ParseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "date", Reason: "must be an ISO-8601 timestamp"}
}
