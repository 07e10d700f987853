package models

import "time"

// SignalStatus 信号状态
// Open 为初始状态，其余均为终态，到达终态后不再迁移
type SignalStatus uint8

const (
	StatusOpen SignalStatus = iota
	StatusWin
	StatusLoss
	StatusClosed
)

// Terminal 是否为终态
func (s SignalStatus) Terminal() bool {
	return s != StatusOpen
}

// Valid 是否为已定义的状态值
func (s SignalStatus) Valid() bool {
	return s <= StatusClosed
}

func (s SignalStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusWin:
		return "win"
	case StatusLoss:
		return "loss"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalJSON 序列化为状态名
func (s SignalStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ParseSignalStatus 解析状态名，未知名称返回 ok=false
func ParseSignalStatus(name string) (SignalStatus, bool) {
	switch name {
	case "open":
		return StatusOpen, true
	case "win":
		return StatusWin, true
	case "loss":
		return StatusLoss, true
	case "closed":
		return StatusClosed, true
	default:
		return StatusOpen, false
	}
}

// OracleSignal 信号账本记录
// 发布后只追加字段更新，永不删除
type OracleSignal struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false;comment:信号 id，由账本分配" json:"id"`

	// 发布时固定的字段
	Token         string `gorm:"type:varchar(64);not null;index:idx_token;comment:标的代币" json:"token"`
	Symbol        string `gorm:"type:varchar(10);not null;comment:展示符号，最长 10 字节" json:"symbol"`
	Score         uint8  `gorm:"not null;comment:置信评分 0-100" json:"score"`
	RiskLevel     uint8  `gorm:"not null;comment:风险等级，调用方定义" json:"risk_level"`
	SourcesBitmap uint8  `gorm:"not null;comment:上游检测器位图" json:"sources_bitmap"`
	McapAtSignal  uint64 `gorm:"not null;comment:发布时市值快照" json:"mcap_at_signal"`
	EntryPrice    uint64 `gorm:"not null;comment:入场价" json:"entry_price"`
	Timestamp     int64  `gorm:"not null;comment:发布时间，unix 秒" json:"timestamp"`

	// 生命周期内更新的字段
	ATHPrice  uint64       `gorm:"column:ath_price;not null;comment:发布以来最高价" json:"ath_price"`
	ExitPrice uint64       `gorm:"not null;default:0;comment:离场价，未关闭为 0" json:"exit_price"`
	RoiBps    int64        `gorm:"not null;default:0;comment:收益率，基点" json:"roi_bps"`
	Status    SignalStatus `gorm:"not null;default:0;index:idx_status;comment:状态 0=open 1=win 2=loss 3=closed" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (OracleSignal) TableName() string {
	return "oracle_signals"
}
