package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/oracle-alpha/oracle-ledger/pkg/goplus"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client 单个 websocket 订阅者
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	minScore  atomic.Int64 // 订阅过滤：只接收评分不低于该值的信号
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, sendBuffer int) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *Client) start() {
	goplus.Go(c.readPump)
	goplus.Go(c.writePump)
}

// enqueue 非阻塞投递，缓冲满则丢弃（慢客户端不阻塞广播）
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("ws send buffer full, message dropped")
	}
}

// readPump 读取客户端消息，目前只处理订阅过滤
// {"type":"subscribe","min_score":70}
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if gjson.GetBytes(data, "type").String() == "subscribe" {
			c.minScore.Store(gjson.GetBytes(data, "min_score").Int())
		}
	}
}

// writePump 发送消息与心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	})
}
