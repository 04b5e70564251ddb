package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"bomet/internal/leaderboard"
	"bomet/pkg/score"

	"go.uber.org/zap"
)

type errorBody struct {
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error"`
}

type healthBody struct {
	OK     bool    `json:"ok"`
	Uptime float64 `json:"uptime"`
}

type submitRequest struct {
	PlayerName string          `json:"playerName"`
	Score      *float64        `json:"score"`
	Date       *string         `json:"date"`
	Stats      json.RawMessage `json:"stats"`
}

type submitResponse struct {
	OK    bool         `json:"ok"`
	Entry score.Record `json:"entry"`
}

type clearResponse struct {
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

var notOK = new(bool)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{OK: true, Uptime: time.Since(h.started).Seconds()})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{OK: notOK, Error: "score store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("malformed score submission", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "playerName and numeric score are required"})
		return
	}

	sub := leaderboard.Submission{
		PlayerName: req.PlayerName,
		Score:      req.Score,
	}
	if len(req.Stats) > 0 && string(req.Stats) != "null" {
		sub.Stats = req.Stats
	}
	if req.Date != nil && *req.Date != "" {
		at, err := leaderboard.ParseDate(*req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		sub.SubmittedAt = at
	}

	rec, err := h.board.SubmitScore(r.Context(), sub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, submitResponse{OK: true, Entry: rec})
	case leaderboard.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{OK: notOK, Error: "failed to save score"})
	}
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	// Anything that is not a number means "default".
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = 0
	}

	records, err := h.board.TopScores(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to load leaderboard"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.board.ClearLeaderboard(r.Context(), r.URL.Query().Get("key"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, clearResponse{OK: true, Message: "Leaderboard cleared", DeletedCount: deleted})
	case errors.Is(err, leaderboard.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{OK: notOK, Error: "Unauthorized. Provide ADMIN_KEY as query ?key=..."})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{OK: notOK, Error: "failed to clear leaderboard"})
	}
}

func (h *Handler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.cfg.WelcomePage, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
