package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Leaderboard Metrics
	ScoresSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_scores_submitted_total",
		Help: "The total number of scores persisted",
	})
	ScoreValidationErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_score_validation_errors_total",
		Help: "The total number of score submissions rejected as invalid",
	})
	LeaderboardClearsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bomet_leaderboard_clears_total",
		Help: "Admin clear attempts by outcome",
	}, []string{"outcome"})
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bomet_store_errors_total",
		Help: "Score store failures by operation",
	}, []string{"op"})

	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bomet_http_request_duration_seconds",
		Help:    "Latency of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// Feed Metrics
	FeedEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bomet_feed_events_published_total",
		Help: "Score events published to Kafka by type",
	}, []string{"type"})
	FeedPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_feed_publish_errors_total",
		Help: "The total number of errors occurred while publishing to Kafka",
	})
	FeedTokenSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_feed_token_saves_total",
		Help: "The total number of resume token saves",
	})

	// Archive Metrics
	ArchiveMessagesConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_archive_messages_consumed_total",
		Help: "The total number of messages consumed from Kafka",
	})
	ArchiveBatchWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_archive_batch_writes_total",
		Help: "The total number of batch write operations to PostgreSQL",
	})
	ArchiveWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bomet_archive_write_errors_total",
		Help: "The total number of errors occurred during PostgreSQL writes",
	})
	ArchiveWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bomet_archive_write_latency_seconds",
		Help:    "Latency of PostgreSQL archive writes",
		Buckets: prometheus.DefBuckets,
	})
)
