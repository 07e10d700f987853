package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/oracle-alpha/oracle-ledger/internal/monitor"
)

// Publisher NATS 发布器
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		Conn: conn,
	}

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(true)

	return p, nil
}

// Name 下游标识
func (p *Publisher) Name() string {
	return "nats"
}

// PublishSignalOpened 发布信号开启事件
func (p *Publisher) PublishSignalOpened(event *SignalOpenedEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	return p.Publish(TopicSignalOpened, data)
}

// PublishSignalClosed 发布信号关闭事件
func (p *Publisher) PublishSignalClosed(event *SignalClosedEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	return p.Publish(TopicSignalClosed, data)
}

// SubscribePriceTicks 订阅价格行情（ATH 跟踪器用）
func (p *Publisher) SubscribePriceTicks(handler func(data []byte)) (*nats.Subscription, error) {
	return p.Conn.Subscribe(TopicPriceTick, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(false)

	if p.Conn != nil {
		p.Conn.Close()
	}
	return nil
}
