package nats

import (
	"encoding/json"

	"github.com/oracle-alpha/oracle-ledger/internal/models"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

const (
	TopicSignalOpened = "oracle_signal_opened"
	TopicSignalClosed = "oracle_signal_closed"
	TopicPriceTick    = "oracle_price_tick"
)

// SignalOpenedEvent 信号发布事件
type SignalOpenedEvent struct {
	ID        uint64 `json:"id"`
	Token     string `json:"token"`     // 标的代币
	Symbol    string `json:"symbol"`    // 展示符号
	Score     uint8  `json:"score"`     // 置信评分
	Timestamp int64  `json:"timestamp"` // 发布时间
}

// Marshal 序列化事件
func (e *SignalOpenedEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error().Err(err).Msg("marshal signal opened event failed")
		return nil, err
	}
	return data, nil
}

// SignalClosedEvent 信号关闭事件
type SignalClosedEvent struct {
	ID     uint64              `json:"id"`
	Status models.SignalStatus `json:"status"`  // 终态 win/loss/closed
	RoiBps int64               `json:"roi_bps"` // 收益率，基点
}

// Marshal 序列化事件
func (e *SignalClosedEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error().Err(err).Msg("marshal signal closed event failed")
		return nil, err
	}
	return data, nil
}
