package dao

import (
	"gorm.io/gorm"

	"github.com/oracle-alpha/oracle-ledger/internal/models"
)

type SignalDAO struct {
	db *gorm.DB
}

var _signal *SignalDAO

// InitSignalDAO 初始化 SignalDAO
func InitSignalDAO(db *gorm.DB) {
	_signal = &SignalDAO{db: db}
}

// Signal 获取 SignalDAO 单例
func Signal() *SignalDAO {
	return _signal
}

// Get 按 id 读取信号，不存在时返回 gorm.ErrRecordNotFound
func (d *SignalDAO) Get(id uint64) (*models.OracleSignal, error) {
	var sig models.OracleSignal
	if err := d.db.First(&sig, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sig, nil
}

// CreateWithState 在一个事务内写入新信号并推进计数器
// id 分配与记录创建必须对外表现为原子
func (d *SignalDAO) CreateWithState(sig *models.OracleSignal, state *models.OracleState) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sig).Error; err != nil {
			return err
		}
		return tx.Model(&models.OracleState{}).
			Where("id = ?", models.StateRowID).
			Update("total_signals", state.TotalSignals).Error
	})
}

// SaveATH 持久化最高价
// 条件显式写 id：信号 id 从 0 开始，零值主键不能交给 gorm 推导
func (d *SignalDAO) SaveATH(sig *models.OracleSignal) error {
	return d.db.Model(&models.OracleSignal{}).
		Where("id = ?", sig.ID).
		Update("ath_price", sig.ATHPrice).Error
}

// CloseWithState 在一个事务内冻结信号并更新胜负计数器
func (d *SignalDAO) CloseWithState(sig *models.OracleSignal, state *models.OracleState) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.OracleSignal{}).
			Where("id = ?", sig.ID).
			Updates(map[string]interface{}{
				"exit_price": sig.ExitPrice,
				"roi_bps":    sig.RoiBps,
				"status":     sig.Status,
			}).Error
		if err != nil {
			return err
		}

		return tx.Model(&models.OracleState{}).
			Where("id = ?", models.StateRowID).
			Updates(map[string]interface{}{
				"total_wins":   state.TotalWins,
				"total_losses": state.TotalLosses,
			}).Error
	})
}

// ListQuery 信号列表查询条件
type ListQuery struct {
	MinScore int                  // 最低评分，0 表示不过滤
	Status   *models.SignalStatus // 为 nil 表示不过滤
	Limit    int
}

// List 按条件查询信号，新发布的在前
func (d *SignalDAO) List(q ListQuery) ([]*models.OracleSignal, error) {
	db := d.db.Model(&models.OracleSignal{})

	if q.MinScore > 0 {
		db = db.Where("score >= ?", q.MinScore)
	}
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var sigs []*models.OracleSignal
	err := db.Order("id DESC").Find(&sigs).Error
	return sigs, err
}

// ListOpen 查询全部未关闭信号（ATH 跟踪索引用）
func (d *SignalDAO) ListOpen() ([]*models.OracleSignal, error) {
	var sigs []*models.OracleSignal
	err := d.db.
		Where("status = ?", models.StatusOpen).
		Order("id ASC").
		Find(&sigs).Error
	return sigs, err
}

// Leaderboard 按收益率排名的终态信号
func (d *SignalDAO) Leaderboard(limit int) ([]*models.OracleSignal, error) {
	var sigs []*models.OracleSignal
	err := d.db.
		Where("status <> ?", models.StatusOpen).
		Order("roi_bps DESC").
		Limit(limit).
		Find(&sigs).Error
	return sigs, err
}

// Gainers 按最高价涨幅排名的未关闭信号
func (d *SignalDAO) Gainers(limit int) ([]*models.OracleSignal, error) {
	var sigs []*models.OracleSignal
	err := d.db.
		Where("status = ? AND entry_price > 0", models.StatusOpen).
		Order("ath_price * 1.0 / entry_price DESC").
		Limit(limit).
		Find(&sigs).Error
	return sigs, err
}

// Count 信号总数
func (d *SignalDAO) Count() (int64, error) {
	var count int64
	err := d.db.Model(&models.OracleSignal{}).Count(&count).Error
	return count, err
}

// AvgScore 全部信号的平均评分，空表返回 0
func (d *SignalDAO) AvgScore() (float64, error) {
	var avg *float64
	err := d.db.Model(&models.OracleSignal{}).
		Select("AVG(score)").
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}
