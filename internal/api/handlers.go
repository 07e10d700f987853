package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/oracle-alpha/oracle-ledger/internal/dao"
	"github.com/oracle-alpha/oracle-ledger/internal/ledger"
	"github.com/oracle-alpha/oracle-ledger/internal/models"
	"github.com/oracle-alpha/oracle-ledger/internal/monitor"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

const (
	authorityHeader  = "X-Authority"
	defaultListLimit = 20
	rankLimit        = 10
)

// publishRequest POST /api/signals 请求体
type publishRequest struct {
	Token         string `json:"token"`
	Symbol        string `json:"symbol"`
	Score         uint8  `json:"score"`
	RiskLevel     uint8  `json:"risk_level"`
	SourcesBitmap uint8  `json:"sources_bitmap"`
	Mcap          uint64 `json:"mcap"`
	EntryPrice    uint64 `json:"entry_price"`
}

type athRequest struct {
	ATHPrice uint64 `json:"ath_price"`
}

type closeRequest struct {
	ExitPrice uint64 `json:"exit_price"`
}

// listSignals GET /api/signals?min_score=&status=&limit=
func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	minScore := cast.ToInt(query.Get("min_score"))
	if minScore == 0 {
		minScore = cast.ToInt(query.Get("minScore"))
	}

	limit := cast.ToInt(query.Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > s.pageLimit {
		limit = s.pageLimit
	}

	q := dao.ListQuery{MinScore: minScore, Limit: limit}
	if name := query.Get("status"); name != "" {
		status, ok := models.ParseSignalStatus(name)
		if !ok {
			s.writeError(w, "list_signals", http.StatusBadRequest, errors.New("unknown status: "+name))
			return
		}
		q.Status = &status
	}

	sigs, err := dao.Signal().List(q)
	if err != nil {
		s.writeError(w, "list_signals", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "list_signals", http.StatusOK, map[string]any{
		"count":   len(sigs),
		"signals": sigs,
	})
}

// getSignal GET /api/signals/{id}
func (s *Server) getSignal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, "get_signal", http.StatusBadRequest, errors.New("invalid signal id"))
		return
	}

	sig, err := dao.Signal().Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.writeError(w, "get_signal", http.StatusNotFound, ledger.ErrSignalNotFound)
			return
		}
		s.writeError(w, "get_signal", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "get_signal", http.StatusOK, sig)
}

// publishSignal POST /api/signals
func (s *Server) publishSignal(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "publish_signal", http.StatusBadRequest, err)
		return
	}

	sig, err := s.ledger.Publish(r.Header.Get(authorityHeader), ledger.PublishParams{
		Token:         req.Token,
		Symbol:        req.Symbol,
		Score:         req.Score,
		RiskLevel:     req.RiskLevel,
		SourcesBitmap: req.SourcesBitmap,
		Mcap:          req.Mcap,
		EntryPrice:    req.EntryPrice,
	})
	if err != nil {
		s.writeError(w, "publish_signal", errStatus(err), err)
		return
	}

	s.writeJSON(w, "publish_signal", http.StatusCreated, sig)
}

// updateATH POST /api/signals/{id}/ath
func (s *Server) updateATH(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, "update_ath", http.StatusBadRequest, errors.New("invalid signal id"))
		return
	}

	var req athRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "update_ath", http.StatusBadRequest, err)
		return
	}

	if err = s.ledger.UpdateATH(r.Header.Get(authorityHeader), id, req.ATHPrice); err != nil {
		s.writeError(w, "update_ath", errStatus(err), err)
		return
	}

	s.writeJSON(w, "update_ath", http.StatusOK, map[string]string{"status": "ok"})
}

// closeSignal POST /api/signals/{id}/close
func (s *Server) closeSignal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, "close_signal", http.StatusBadRequest, errors.New("invalid signal id"))
		return
	}

	var req closeRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "close_signal", http.StatusBadRequest, err)
		return
	}

	sig, err := s.ledger.Close(r.Header.Get(authorityHeader), id, req.ExitPrice)
	if err != nil {
		s.writeError(w, "close_signal", errStatus(err), err)
		return
	}

	s.writeJSON(w, "close_signal", http.StatusOK, sig)
}

// stats GET /api/stats
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.rcache.Get("stats"); ok {
		s.writeJSON(w, "stats", http.StatusOK, cached)
		return
	}

	st := s.ledger.Stats()

	avgScore, err := dao.Signal().AvgScore()
	if err != nil {
		s.writeError(w, "stats", http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{
		"total_signals": st.TotalSignals,
		"total_wins":    st.TotalWins,
		"total_losses":  st.TotalLosses,
		"win_rate":      st.WinRate,
		"avg_score":     avgScore,
	}
	s.rcache.SetDefault("stats", resp)
	s.writeJSON(w, "stats", http.StatusOK, resp)
}

// leaderboard GET /api/leaderboard 终态信号按收益率排名
func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.rcache.Get("leaderboard"); ok {
		s.writeJSON(w, "leaderboard", http.StatusOK, cached)
		return
	}

	sigs, err := dao.Signal().Leaderboard(rankLimit)
	if err != nil {
		s.writeError(w, "leaderboard", http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{"count": len(sigs), "signals": sigs}
	s.rcache.SetDefault("leaderboard", resp)
	s.writeJSON(w, "leaderboard", http.StatusOK, resp)
}

// gainers GET /api/gainers 未关闭信号按最高价涨幅排名
func (s *Server) gainers(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.rcache.Get("gainers"); ok {
		s.writeJSON(w, "gainers", http.StatusOK, cached)
		return
	}

	sigs, err := dao.Signal().Gainers(rankLimit)
	if err != nil {
		s.writeError(w, "gainers", http.StatusInternalServerError, err)
		return
	}

	resp := map[string]any{"count": len(sigs), "signals": sigs}
	s.rcache.SetDefault("gainers", resp)
	s.writeJSON(w, "gainers", http.StatusOK, resp)
}

// errStatus 账本错误映射为 HTTP 状态码
func errStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrSymbolTooLong), errors.Is(err, ledger.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrSignalNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrSignalAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Str("endpoint", endpoint).Msg("write response failed")
	}
	monitor.GetMetrics().IncAPIRequests(endpoint, code)
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, code int, err error) {
	s.writeJSON(w, endpoint, code, map[string]string{"error": err.Error()})
}
