package ledger

import (
	"math"
	"math/big"
)

const (
	// BpsDenominator 1 bps = 0.01%
	BpsDenominator = 10000
	// WinThresholdBps 胜利线：收益率 >= 50%
	WinThresholdBps = 5000
)

// roiBps 计算基点收益率 (exit - entry) * 10000 / entry
// 中间量使用任意精度整数，覆盖完整 uint64 价格区间；商向零截断。
// entry 为 0 是定义过的退化情况，返回 0。
// 商超出 int64 表示范围时饱和到边界（只可能向上：下界是 -10000）。
func roiBps(entry, exit uint64) int64 {
	if entry == 0 {
		return 0
	}

	e := new(big.Int).SetUint64(entry)
	roi := new(big.Int).SetUint64(exit)
	roi.Sub(roi, e)
	roi.Mul(roi, big.NewInt(BpsDenominator))
	roi.Quo(roi, e)

	if !roi.IsInt64() {
		if roi.Sign() > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return roi.Int64()
}
