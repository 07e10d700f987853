package ledger

import (
	"errors"
	"math"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/oracle-alpha/oracle-ledger/internal/dao"
	"github.com/oracle-alpha/oracle-ledger/internal/models"
	"github.com/oracle-alpha/oracle-ledger/internal/monitor"
	"github.com/oracle-alpha/oracle-ledger/internal/nats"
	"github.com/oracle-alpha/oracle-ledger/pkg/logger"
)

const (
	maxSymbolLen = 10
	maxScore     = 100
)

// Publisher 事件通知下游（NATS、websocket 等）
// 通知是建议性的：发送失败只记录，不回滚已提交的状态迁移
type Publisher interface {
	Name() string
	PublishSignalOpened(*nats.SignalOpenedEvent) error
	PublishSignalClosed(*nats.SignalClosedEvent) error
}

// PublishParams 发布信号的入参
type PublishParams struct {
	Token         string
	Symbol        string
	Score         uint8
	RiskLevel     uint8
	SourcesBitmap uint8
	Mcap          uint64
	EntryPrice    uint64
}

// Stats 聚合统计
type Stats struct {
	TotalSignals uint64  `json:"total_signals"`
	TotalWins    uint64  `json:"total_wins"`
	TotalLosses  uint64  `json:"total_losses"`
	WinRate      float64 `json:"win_rate"` // 百分比，一位小数
}

// Ledger 信号账本
// 持有权限身份与三个聚合计数器，并串行化所有写操作：
// 同一时刻只有一个迁移在执行，id 分配与记录创建对外原子。
type Ledger struct {
	mu    sync.Mutex
	state *models.OracleState
	pubs  []Publisher
	now   func() time.Time
}

// New 创建账本实例，发布器可以为空（纯库用法/测试）
func New(pubs ...Publisher) *Ledger {
	return &Ledger{
		pubs: pubs,
		now:  time.Now,
	}
}

// Initialize 创建状态行，计数器清零
// 每个部署只允许成功一次，重复调用返回 ErrAlreadyInitialized
func (l *Ledger) Initialize(authority string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != nil {
		return ErrAlreadyInitialized
	}

	if _, err := dao.Registry().Get(); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	state := &models.OracleState{
		Authority: authority,
	}
	if err := dao.Registry().Create(state); err != nil {
		return err
	}

	l.state = state
	monitor.GetMetrics().SetLedgerTotals(0, 0, 0)

	logger.Info().Str("authority", authority).Msg("ledger initialized")
	return nil
}

// Bootstrap 服务启动入口：状态行存在则加载，不存在则初始化
// 权限身份一经初始化不可变，配置不一致时以存量为准
func (l *Ledger) Bootstrap(authority string) error {
	state, err := dao.Registry().Get()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return l.Initialize(authority)
		}
		return err
	}

	if authority != "" && authority != state.Authority {
		logger.Warn().
			Str("configured", authority).
			Str("stored", state.Authority).
			Msg("configured authority differs from stored one, keeping stored")
	}

	l.mu.Lock()
	l.state = state
	l.mu.Unlock()

	monitor.GetMetrics().SetLedgerTotals(state.TotalSignals, state.TotalWins, state.TotalLosses)

	logger.Info().
		Str("authority", state.Authority).
		Uint64("total_signals", state.TotalSignals).
		Msg("ledger state loaded")
	return nil
}

// Publish 发布新信号
// 校验全部通过后才落库：id = total_signals，随后计数器 +1，两者在一个事务内
func (l *Ledger) Publish(caller string, p PublishParams) (*models.OracleSignal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return nil, ErrNotInitialized
	}
	if caller != l.state.Authority {
		monitor.GetMetrics().IncOpRejected("publish", "unauthorized")
		return nil, ErrUnauthorized
	}
	if len(p.Symbol) > maxSymbolLen {
		monitor.GetMetrics().IncOpRejected("publish", "symbol_too_long")
		return nil, ErrSymbolTooLong
	}
	if p.Score > maxScore {
		monitor.GetMetrics().IncOpRejected("publish", "invalid_score")
		return nil, ErrInvalidScore
	}

	sig := &models.OracleSignal{
		ID:            l.state.TotalSignals,
		Token:         p.Token,
		Symbol:        p.Symbol,
		Score:         p.Score,
		RiskLevel:     p.RiskLevel,
		SourcesBitmap: p.SourcesBitmap,
		McapAtSignal:  p.Mcap,
		EntryPrice:    p.EntryPrice,
		ATHPrice:      p.EntryPrice,
		ExitPrice:     0,
		RoiBps:        0,
		Timestamp:     l.now().Unix(),
		Status:        models.StatusOpen,
	}

	next := *l.state
	next.TotalSignals++
	if err := dao.Signal().CreateWithState(sig, &next); err != nil {
		return nil, err
	}
	l.state.TotalSignals = next.TotalSignals

	m := monitor.GetMetrics()
	m.IncSignalsPublished(sig.Symbol)
	m.SetLedgerTotals(l.state.TotalSignals, l.state.TotalWins, l.state.TotalLosses)

	l.emitOpened(sig)

	logger.Info().
		Uint64("id", sig.ID).
		Str("symbol", sig.Symbol).
		Uint8("score", sig.Score).
		Msg("signal published")
	return sig, nil
}

// UpdateATH 刷新最高价
// 单调不回退：只有 newATH 高于当前值才写入，否则无操作。
// 不检查状态，允许对已关闭信号做迟到修正。
func (l *Ledger) UpdateATH(caller string, id uint64, newATH uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return ErrNotInitialized
	}
	if caller != l.state.Authority {
		monitor.GetMetrics().IncOpRejected("update_ath", "unauthorized")
		return ErrUnauthorized
	}

	sig, err := l.getSignal(id)
	if err != nil {
		return err
	}

	if newATH <= sig.ATHPrice {
		return nil
	}

	sig.ATHPrice = newATH
	if err = dao.Signal().SaveATH(sig); err != nil {
		return err
	}

	monitor.GetMetrics().IncATHUpdates()
	logger.Debug().Uint64("id", id).Uint64("ath", newATH).Msg("signal ath updated")
	return nil
}

// Close 关闭信号，迁入终态
// 判定顺序：roi >= 5000 为 Win，roi < 0 为 Loss，其余为 Closed（不计胜负）。
// 信号行与计数器行在一个事务内更新，对同一信号的并发关闭只有一次成功。
func (l *Ledger) Close(caller string, id uint64, exitPrice uint64) (*models.OracleSignal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return nil, ErrNotInitialized
	}
	if caller != l.state.Authority {
		monitor.GetMetrics().IncOpRejected("close", "unauthorized")
		return nil, ErrUnauthorized
	}

	sig, err := l.getSignal(id)
	if err != nil {
		return nil, err
	}
	if sig.Status != models.StatusOpen {
		monitor.GetMetrics().IncOpRejected("close", "already_closed")
		return nil, ErrSignalAlreadyClosed
	}

	sig.ExitPrice = exitPrice
	sig.RoiBps = roiBps(sig.EntryPrice, exitPrice)

	next := *l.state
	switch {
	case sig.RoiBps >= WinThresholdBps:
		sig.Status = models.StatusWin
		next.TotalWins++
	case sig.RoiBps < 0:
		sig.Status = models.StatusLoss
		next.TotalLosses++
	default:
		sig.Status = models.StatusClosed
	}

	if err = dao.Signal().CloseWithState(sig, &next); err != nil {
		return nil, err
	}
	l.state.TotalWins = next.TotalWins
	l.state.TotalLosses = next.TotalLosses

	m := monitor.GetMetrics()
	m.IncSignalsClosed(sig.Status.String())
	m.SetLedgerTotals(l.state.TotalSignals, l.state.TotalWins, l.state.TotalLosses)

	l.emitClosed(sig)

	logger.Info().
		Uint64("id", sig.ID).
		Str("status", sig.Status.String()).
		Int64("roi_bps", sig.RoiBps).
		Msg("signal closed")
	return sig, nil
}

// getSignal 读取信号，未找到映射为 ErrSignalNotFound
func (l *Ledger) getSignal(id uint64) (*models.OracleSignal, error) {
	sig, err := dao.Signal().Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return sig, nil
}

// Authority 当前权限身份
func (l *Ledger) Authority() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return ""
	}
	return l.state.Authority
}

// Totals 三个聚合计数器（monitor.LedgerRef）
func (l *Ledger) Totals() (signals, wins, losses uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return 0, 0, 0
	}
	return l.state.TotalSignals, l.state.TotalWins, l.state.TotalLosses
}

// Stats 聚合统计，胜率 = wins / (wins + losses)
func (l *Ledger) Stats() Stats {
	signals, wins, losses := l.Totals()

	var winRate float64
	if wins+losses > 0 {
		winRate = math.Round(float64(wins)/float64(wins+losses)*1000) / 10
	}

	return Stats{
		TotalSignals: signals,
		TotalWins:    wins,
		TotalLosses:  losses,
		WinRate:      winRate,
	}
}

func (l *Ledger) emitOpened(sig *models.OracleSignal) {
	if len(l.pubs) == 0 {
		return
	}

	event := &nats.SignalOpenedEvent{
		ID:        sig.ID,
		Token:     sig.Token,
		Symbol:    sig.Symbol,
		Score:     sig.Score,
		Timestamp: sig.Timestamp,
	}
	for _, pub := range l.pubs {
		if err := pub.PublishSignalOpened(event); err != nil {
			monitor.GetMetrics().IncEventSinkErrors(pub.Name())
			logger.Error().Err(err).Uint64("id", sig.ID).Str("sink", pub.Name()).
				Msg("publish signal opened event failed")
		}
	}
}

func (l *Ledger) emitClosed(sig *models.OracleSignal) {
	if len(l.pubs) == 0 {
		return
	}

	event := &nats.SignalClosedEvent{
		ID:     sig.ID,
		Status: sig.Status,
		RoiBps: sig.RoiBps,
	}
	for _, pub := range l.pubs {
		if err := pub.PublishSignalClosed(event); err != nil {
			monitor.GetMetrics().IncEventSinkErrors(pub.Name())
			logger.Error().Err(err).Uint64("id", sig.ID).Str("sink", pub.Name()).
				Msg("publish signal closed event failed")
		}
	}
}
