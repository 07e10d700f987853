package models

import "time"

// OracleState 预言机全局状态表（单行，id 固定为 1）
type OracleState struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Authority    string `gorm:"type:varchar(64);not null;comment:唯一发布权限身份" json:"authority"`
	TotalSignals uint64 `gorm:"not null;default:0;comment:信号总数，同时是下一个信号 id" json:"total_signals"`
	TotalWins    uint64 `gorm:"not null;default:0;comment:胜利信号总数" json:"total_wins"`
	TotalLosses  uint64 `gorm:"not null;default:0;comment:失败信号总数" json:"total_losses"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (OracleState) TableName() string {
	return "oracle_state"
}

// StateRowID 状态行固定主键
const StateRowID = 1
