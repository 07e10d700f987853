package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oracle-alpha/oracle-ledger/pkg/goplus"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

// LedgerRef 账本状态引用接口
type LedgerRef interface {
	Totals() (signals, wins, losses uint64)
}

// PublisherRef NATS发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// HubRef websocket 推送中心引用接口
type HubRef interface {
	ClientCount() int64
}

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr      string
	ledger    LedgerRef
	publisher PublisherRef
	hub       HubRef
	server    *http.Server
	mu        sync.RWMutex
	healthy   bool
	startTime time.Time
}

// NewHealthServer 创建健康检查服务器
func NewHealthServer(addr string, ledger LedgerRef, publisher PublisherRef, hub HubRef) *HealthServer {
	return &HealthServer{
		addr:      addr,
		ledger:    ledger,
		publisher: publisher,
		hub:       hub,
		healthy:   true,
		startTime: time.Now(),
	}
}

// Start 启动HTTP服务器
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)

	// Prometheus指标端点
	mux.Handle("/metrics", promhttp.Handler())

	// 服务状态端点
	mux.HandleFunc("/status", h.statusHandler)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	logger.Info().Str("addr", h.addr).Msg("health server started")

	return nil
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	return h.server.Shutdown(ctx)
}

// healthHandler 健康检查处理器
// 返回 client 依赖的 status/signals/uptime 字段
func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// readyHandler 就绪检查处理器
func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// liveHandler 存活检查处理器
func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusHandler 服务状态处理器
func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// getHealthStatus 获取健康状态
func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	natsConnected := false
	if h.publisher != nil {
		natsConnected = h.publisher.IsConnected()
	}

	var signals, wins, losses uint64
	if h.ledger != nil {
		signals, wins, losses = h.ledger.Totals()
	}

	var wsClients int64
	if h.hub != nil {
		wsClients = h.hub.ClientCount()
	}

	return HealthStatus{
		Status:  statusLabel(healthy),
		Healthy: healthy,
		Signals: signals,
		Uptime:  time.Since(h.startTime).Seconds(),
		NATS: NATSStatus{
			Connected: natsConnected,
		},
		Ledger: LedgerStatus{
			TotalSignals: signals,
			TotalWins:    wins,
			TotalLosses:  losses,
		},
		Feed: FeedStatus{
			Clients: wsClients,
		},
	}
}

func statusLabel(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "unavailable"
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Status  string       `json:"status"`
	Healthy bool         `json:"healthy"`
	Signals uint64       `json:"signals"`
	Uptime  float64      `json:"uptime"` // 秒
	NATS    NATSStatus   `json:"nats"`
	Ledger  LedgerStatus `json:"ledger"`
	Feed    FeedStatus   `json:"feed"`
}

// NATSStatus NATS连接状态
type NATSStatus struct {
	Connected bool `json:"connected"`
}

// LedgerStatus 账本计数器状态
type LedgerStatus struct {
	TotalSignals uint64 `json:"total_signals"`
	TotalWins    uint64 `json:"total_wins"`
	TotalLosses  uint64 `json:"total_losses"`
}

// FeedStatus websocket 推送状态
type FeedStatus struct {
	Clients int64 `json:"clients"`
}
