package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	signalsPublished *prometheus.CounterVec
	signalsClosed    *prometheus.CounterVec
	athUpdates       prometheus.Counter
	opRejected       *prometheus.CounterVec
	eventSinkErrors  *prometheus.CounterVec
	natsConnected    prometheus.Gauge
	wsClients        prometheus.Gauge
	totalSignals     prometheus.Gauge
	totalWins        prometheus.Gauge
	totalLosses      prometheus.Gauge
	apiRequests      *prometheus.CounterVec
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		signalsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_published_total",
				Help:      "Total number of signals published to the ledger",
			},
			[]string{"symbol"},
		),
		signalsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_closed_total",
				Help:      "Total number of signals closed, by outcome",
			},
			[]string{"outcome"}, // win, loss, closed
		),
		athUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ath_updates_total",
				Help:      "Total number of effective ATH updates",
			},
		),
		opRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_rejected_total",
				Help:      "写操作被拒绝总数（按操作和原因）",
			},
			[]string{"op", "reason"},
		),
		eventSinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_sink_errors_total",
				Help:      "事件通知发送失败总数（按下游）",
			},
			[]string{"sink"}, // nats, ws
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_clients",
				Help:      "Current number of websocket feed subscribers",
			},
		),
		totalSignals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_total_signals",
				Help:      "Registry total_signals counter",
			},
		),
		totalWins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_total_wins",
				Help:      "Registry total_wins counter",
			},
		),
		totalLosses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_total_losses",
				Help:      "Registry total_losses counter",
			},
		),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "API 请求总数（按端点和状态码）",
			},
			[]string{"endpoint", "code"},
		),
	}

	prometheus.MustRegister(
		m.signalsPublished,
		m.signalsClosed,
		m.athUpdates,
		m.opRejected,
		m.eventSinkErrors,
		m.natsConnected,
		m.wsClients,
		m.totalSignals,
		m.totalWins,
		m.totalLosses,
		m.apiRequests,
	)

	return m
}

// IncSignalsPublished 增加发布的信号计数
func (m *Metrics) IncSignalsPublished(symbol string) {
	m.signalsPublished.WithLabelValues(symbol).Inc()
}

// IncSignalsClosed 增加关闭的信号计数
func (m *Metrics) IncSignalsClosed(outcome string) {
	m.signalsClosed.WithLabelValues(outcome).Inc()
}

// IncATHUpdates 增加生效的 ATH 更新计数
func (m *Metrics) IncATHUpdates() {
	m.athUpdates.Inc()
}

// IncOpRejected 增加被拒绝的写操作计数
func (m *Metrics) IncOpRejected(op, reason string) {
	m.opRejected.WithLabelValues(op, reason).Inc()
}

// IncEventSinkErrors 增加事件发送失败计数
func (m *Metrics) IncEventSinkErrors(sink string) {
	m.eventSinkErrors.WithLabelValues(sink).Inc()
}

// SetNATSConnected 设置NATS连接状态
func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}

// SetWSClients 设置 websocket 订阅者数量
func (m *Metrics) SetWSClients(count int64) {
	m.wsClients.Set(float64(count))
}

// SetLedgerTotals 同步账本计数器
func (m *Metrics) SetLedgerTotals(signals, wins, losses uint64) {
	m.totalSignals.Set(float64(signals))
	m.totalWins.Set(float64(wins))
	m.totalLosses.Set(float64(losses))
}

// IncAPIRequests 增加 API 请求计数
func (m *Metrics) IncAPIRequests(endpoint string, code int) {
	m.apiRequests.WithLabelValues(endpoint, codeLabel(code)).Inc()
}

func codeLabel(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

var globalMetrics *Metrics
var metricsMu sync.Once

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsMu.Do(func() {
		globalMetrics = NewMetrics("oracle_ledger")
	})
	return globalMetrics
}

// InitMetrics 初始化指标收集器（供main使用）
func InitMetrics() {
	GetMetrics()
}
