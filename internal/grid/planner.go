package grid

import (
	"math"

	"github.com/shopspring/decimal"

	"grid-trader/internal/config"
)

var two = decimal.NewFromInt(2)

// Counts 按比例拆分挂单总数，卖单数四舍五入，买单数取剩余，保证两者之和等于 TotalOrders。
func Counts(cfg config.GridConfig) (sellCount, buyCount int) {
	sellCount = int(math.Round(float64(cfg.TotalOrders) * cfg.SellRatio))
	if sellCount < 0 {
		sellCount = 0
	}
	if sellCount > cfg.TotalOrders {
		sellCount = cfg.TotalOrders
	}
	return sellCount, cfg.TotalOrders - sellCount
}

// ComputeWindow 计算中间价、半窗口以及两侧目标单数。
func ComputeWindow(s Snapshot, cfg config.GridConfig) Window {
	mid := s.MidPrice()
	half := mid.Mul(decimal.NewFromFloat(cfg.WindowPercent)).Div(two)
	sellCount, buyCount := Counts(cfg)
	return Window{
		Mid:        mid,
		HalfWindow: half,
		SellCount:  sellCount,
		BuyCount:   buyCount,
	}
}

// PlanLadders 根据快照与参数生成理想卖单与买单阶梯，结果只依赖入参。
//
// 卖单从 >= ask+safeGap 的最小 interval 整数倍起向上排列，超过 mid+halfWindow+driftBuffer 即截断；
// 买单从 <= bid-safeGap 的最大 interval 整数倍起向下排列，低于 mid-halfWindow-driftBuffer 或最低有效价即截断。
func PlanLadders(s Snapshot, cfg config.GridConfig) (sell Ladder, buy Ladder) {
	w := ComputeWindow(s, cfg)

	interval := decimal.NewFromFloat(cfg.Interval)
	gap := decimal.NewFromFloat(cfg.SafeGap)
	drift := decimal.NewFromFloat(cfg.MaxDriftBuffer)
	floor := decimal.NewFromFloat(cfg.MinValidPrice)

	upper := w.Mid.Add(w.HalfWindow).Add(drift)
	lower := w.Mid.Sub(w.HalfWindow).Sub(drift)

	sell = Ladder{Side: SideSell, Prices: make([]decimal.Decimal, 0, w.SellCount)}
	sellStart := s.Ask().Add(gap).Div(interval).Ceil().Mul(interval)
	for i := 0; i < w.SellCount; i++ {
		p := sellStart.Add(interval.Mul(decimal.NewFromInt(int64(i))))
		if p.GreaterThan(upper) {
			break
		}
		sell.Prices = append(sell.Prices, p)
	}

	buy = Ladder{Side: SideBuy, Prices: make([]decimal.Decimal, 0, w.BuyCount)}
	buyStart := s.Bid().Sub(gap).Div(interval).Floor().Mul(interval)
	for i := 0; i < w.BuyCount; i++ {
		p := buyStart.Sub(interval.Mul(decimal.NewFromInt(int64(i))))
		if p.LessThan(lower) || p.LessThan(floor) || !p.IsPositive() {
			break
		}
		buy.Prices = append(buy.Prices, p)
	}

	return sell, buy
}
