package tracker

import (
	"errors"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"github.com/tidwall/gjson"

	"github.com/oracle-alpha/oracle-ledger/internal/dao"
	"github.com/oracle-alpha/oracle-ledger/internal/ledger"
	"github.com/oracle-alpha/oracle-ledger/internal/nats"
	"github.com/oracle-alpha/oracle-ledger/pkg/concurrent"
	"github.com/oracle-alpha/oracle-ledger/pkg/goplus"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

// Tracker ATH 跟踪器
// 订阅 NATS 行情流，把价格映射到未关闭信号并推进其最高价。
// token -> 信号 id 的索引定期从库里重建，新发布的信号最迟在
// 一个重建周期后开始被跟踪。
type Tracker struct {
	ledger *ledger.Ledger
	pub    *nats.Publisher

	index concurrent.Map[string, []uint64]
	pool  *ants.Pool
	sub   *natsio.Subscription

	reloadInterval time.Duration
	stopChan       chan struct{}
}

// NewTracker 创建跟踪器
func NewTracker(ldg *ledger.Ledger, pub *nats.Publisher, reloadInterval time.Duration, poolSize int) (*Tracker, error) {
	if reloadInterval <= 0 {
		reloadInterval = 30 * time.Second
	}
	if poolSize <= 0 {
		poolSize = 32
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		ledger:         ldg,
		pub:            pub,
		pool:           pool,
		reloadInterval: reloadInterval,
		stopChan:       make(chan struct{}),
	}, nil
}

// Start 构建索引、订阅行情并启动定期重建
func (t *Tracker) Start() error {
	if err := t.rebuildIndex(); err != nil {
		return err
	}

	sub, err := t.pub.SubscribePriceTicks(t.onTick)
	if err != nil {
		return err
	}
	t.sub = sub

	goplus.Go(t.reloadLoop)

	logger.Info().Dur("reload_interval", t.reloadInterval).Msg("ath tracker started")
	return nil
}

// Stop 退订并释放协程池
func (t *Tracker) Stop() {
	close(t.stopChan)
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	t.pool.Release()
}

func (t *Tracker) reloadLoop() {
	ticker := time.NewTicker(t.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.rebuildIndex(); err != nil {
				logger.Error().Err(err).Msg("rebuild tracker index failed")
			}
		case <-t.stopChan:
			return
		}
	}
}

// rebuildIndex 从库里重建 token -> 未关闭信号 id 索引
func (t *Tracker) rebuildIndex() error {
	sigs, err := dao.Signal().ListOpen()
	if err != nil {
		return err
	}

	byToken := make(map[string][]uint64, len(sigs))
	for _, sig := range sigs {
		byToken[sig.Token] = append(byToken[sig.Token], sig.ID)
	}

	t.index.Clear()
	for token, ids := range byToken {
		t.index.Store(token, ids)
	}

	logger.Debug().Int("open_signals", len(sigs)).Int("tokens", len(byToken)).
		Msg("tracker index rebuilt")
	return nil
}

// onTick 处理一条行情
// {"token":"0x..","price":123456}
func (t *Tracker) onTick(data []byte) {
	token := gjson.GetBytes(data, "token").String()
	price := gjson.GetBytes(data, "price").Uint()
	if token == "" || price == 0 {
		return
	}

	ids, ok := t.index.Load(token)
	if !ok {
		return
	}

	authority := t.ledger.Authority()
	for _, id := range ids {
		id := id
		if err := t.pool.Submit(func() {
			t.updateATH(authority, id, price)
		}); err != nil {
			// 池已关闭或过载，降级为同步执行
			t.updateATH(authority, id, price)
		}
	}
}

func (t *Tracker) updateATH(authority string, id, price uint64) {
	err := t.ledger.UpdateATH(authority, id, price)
	if err != nil && !errors.Is(err, ledger.ErrSignalNotFound) {
		logger.Error().Err(err).Uint64("id", id).Uint64("price", price).
			Msg("tracker update ath failed")
	}
}
