package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"

	"github.com/oracle-alpha/oracle-ledger/internal/monitor"
	"github.com/oracle-alpha/oracle-ledger/internal/nats"
	"github.com/oracle-alpha/oracle-ledger/pkg/concurrent"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

// envelope websocket 消息信封
type envelope struct {
	Type string `json:"type"` // signal / close / history
	Data any    `json:"data"`
}

// Hub websocket 推送中心
// 把账本的发布/关闭事件实时广播给所有订阅客户端，
// 广播通过协程池分发，慢客户端丢弃消息而不阻塞账本
type Hub struct {
	clients    concurrent.Map[*Client, struct{}]
	pool       *ants.Pool
	upgrader   websocket.Upgrader
	sendBuffer int

	// History 可选：新连接建立时推送的历史信号快照
	History func() any
}

// NewHub 创建推送中心
func NewHub(sendBuffer, poolSize int) (*Hub, error) {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if poolSize <= 0 {
		poolSize = 256
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	return &Hub{
		pool:       pool,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 信号流是公开只读数据，不限制来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Name 下游标识
func (h *Hub) Name() string {
	return "ws"
}

// ClientCount 当前订阅客户端数量
func (h *Hub) ClientCount() int64 {
	return h.clients.Len()
}

// HandleWS 升级 HTTP 连接并注册客户端
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h, conn, h.sendBuffer)
	h.register(client)

	if h.History != nil {
		if data, err := json.Marshal(envelope{Type: "history", Data: h.History()}); err == nil {
			client.enqueue(data)
		}
	}

	client.start()
}

func (h *Hub) register(c *Client) {
	h.clients.Store(c, struct{}{})
	monitor.GetMetrics().SetWSClients(h.clients.Len())
	logger.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("ws client connected")
}

func (h *Hub) unregister(c *Client) {
	h.clients.Delete(c)
	monitor.GetMetrics().SetWSClients(h.clients.Len())
	logger.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("ws client disconnected")
}

// PublishSignalOpened 广播信号发布事件（ledger.Publisher）
// 客户端可以用 min_score 订阅过滤低分信号
func (h *Hub) PublishSignalOpened(event *nats.SignalOpenedEvent) error {
	data, err := json.Marshal(envelope{Type: "signal", Data: event})
	if err != nil {
		return err
	}

	h.clients.Range(func(c *Client, _ struct{}) bool {
		if int64(event.Score) < c.minScore.Load() {
			return true
		}
		h.dispatch(c, data)
		return true
	})
	return nil
}

// PublishSignalClosed 广播信号关闭事件（ledger.Publisher）
func (h *Hub) PublishSignalClosed(event *nats.SignalClosedEvent) error {
	data, err := json.Marshal(envelope{Type: "close", Data: event})
	if err != nil {
		return err
	}

	h.clients.Range(func(c *Client, _ struct{}) bool {
		h.dispatch(c, data)
		return true
	})
	return nil
}

// dispatch 通过协程池投递，池满时同步投递兜底
func (h *Hub) dispatch(c *Client, data []byte) {
	if err := h.pool.Submit(func() {
		c.enqueue(data)
	}); err != nil {
		c.enqueue(data)
	}
}

// Close 断开所有客户端并释放协程池
func (h *Hub) Close() {
	h.clients.Range(func(c *Client, _ struct{}) bool {
		c.close()
		return true
	})
	h.clients.Clear()
	h.pool.Release()
}
