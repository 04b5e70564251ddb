// Package api maps the leaderboard service onto HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"bomet/internal/leaderboard"
	"bomet/pkg/logger"
	"bomet/pkg/score"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Leaderboard is the service surface the transport needs.
type Leaderboard interface {
	SubmitScore(ctx context.Context, sub leaderboard.Submission) (score.Record, error)
	TopScores(ctx context.Context, limit int) ([]score.Record, error)
	ClearLeaderboard(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// Config holds transport settings
type Config struct {
	AllowedOrigins []string
	WelcomePage    string
	StaticDir      string
	MaxBodyBytes   int64
}

// Handler serves the leaderboard API
type Handler struct {
	logger  *logger.Logger
	board   Leaderboard
	cfg     Config
	started time.Time
}

// NewHandler builds the API handler. The returned http.Handler applies CORS
// and request logging around the router.
func NewHandler(l *logger.Logger, board Leaderboard, cfg Config) http.Handler {
	if cfg.WelcomePage == "" {
		cfg.WelcomePage = "/pages/welcome.html"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}

	h := &Handler{
		logger:  l.Named("http"),
		board:   board,
		cfg:     cfg,
		started: time.Now(),
	}

	return h.withRequestLog(h.withCORS(h.routes()))
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(observeLatency)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scores", h.handleSubmitScore).Methods(http.MethodPost)
	api.HandleFunc("/leaderboard", h.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", h.handleClear).Methods(http.MethodDelete)

	r.HandleFunc("/", h.handleWelcome).Methods(http.MethodGet, http.MethodHead)
	if h.cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

func (h *Handler) withCORS(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(next)
}
