package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/oracle-alpha/oracle-ledger/config"
	"github.com/oracle-alpha/oracle-ledger/internal/ledger"
	"github.com/oracle-alpha/oracle-ledger/internal/ws"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

// Server REST API 服务
// 读接口对所有人开放，写接口要求 X-Authority 头与账本权限身份一致，
// 聚合类读接口（stats / leaderboard / gainers）带 TTL 缓存
type Server struct {
	ledger    *ledger.Ledger
	hub       *ws.Hub
	rcache    *cache.Cache
	pageLimit int
	srv       *http.Server
}

// NewServer 创建 API 服务
func NewServer(cfg config.API, ldg *ledger.Ledger, hub *ws.Hub) *Server {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}

	s := &Server{
		ledger:    ldg,
		hub:       hub,
		rcache:    cache.New(ttl, 2*ttl),
		pageLimit: pageLimit,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/signals", s.listSignals)
	mux.HandleFunc("POST /api/signals", s.publishSignal)
	mux.HandleFunc("GET /api/signals/{id}", s.getSignal)
	mux.HandleFunc("POST /api/signals/{id}/ath", s.updateATH)
	mux.HandleFunc("POST /api/signals/{id}/close", s.closeSignal)
	mux.HandleFunc("GET /api/stats", s.stats)
	mux.HandleFunc("GET /api/leaderboard", s.leaderboard)
	mux.HandleFunc("GET /api/gainers", s.gainers)
	if hub != nil {
		mux.HandleFunc("/ws", hub.HandleWS)
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start 启动服务，阻塞到 Shutdown 被调用
func (s *Server) Start() error {
	logger.Info().Str("addr", s.srv.Addr).Msg("api server starting")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅停止
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
