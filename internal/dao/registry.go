package dao

import (
	"gorm.io/gorm"

	"github.com/oracle-alpha/oracle-ledger/internal/models"
)

type RegistryDAO struct {
	db *gorm.DB
}

var _registry *RegistryDAO

// InitRegistryDAO 初始化 RegistryDAO
// 测试会用独立数据库重复调用，因此不做 Once 保护
func InitRegistryDAO(db *gorm.DB) {
	_registry = &RegistryDAO{db: db}
}

// Registry 获取 RegistryDAO 单例
func Registry() *RegistryDAO {
	return _registry
}

// Get 读取状态行，未初始化时返回 gorm.ErrRecordNotFound
func (d *RegistryDAO) Get() (*models.OracleState, error) {
	var state models.OracleState
	if err := d.db.First(&state, models.StateRowID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// Create 创建状态行
func (d *RegistryDAO) Create(state *models.OracleState) error {
	state.ID = models.StateRowID
	return d.db.Create(state).Error
}
