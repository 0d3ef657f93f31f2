package grid

import (
	"sort"

	"grid-trader/internal/config"
)

// Reconcile 将理想阶梯与现有挂单做差，得到本轮的下单与撤单计划。
//
// 下单按买单在前、卖单在后排列，各自保持阶梯由近及远的顺序。
// 撤单仅在现有挂单总数或任一方向超出目标时触发，候选为不在理想价位集合中的现有挂单，
// 按与中间价的距离由远及近排序，数量不超过 MaxCancelPerCycle。
func Reconcile(sell, buy Ladder, s Snapshot, cfg config.GridConfig) Plan {
	mid := s.MidPrice()
	existingSells := s.Sells()
	existingBuys := s.Buys()

	plan := Plan{
		MidPrice: mid,
		ToPlace:  make([]Level, 0, sell.Len()+buy.Len()),
		ToCancel: make([]Level, 0),
	}

	for _, p := range buy.Prices {
		if !existingBuys.Contains(p) {
			plan.ToPlace = append(plan.ToPlace, Level{Side: SideBuy, Price: p})
		}
	}
	for _, p := range sell.Prices {
		if !existingSells.Contains(p) {
			plan.ToPlace = append(plan.ToPlace, Level{Side: SideSell, Price: p})
		}
	}

	sellCount, buyCount := Counts(cfg)
	existingTotal := existingSells.Len() + existingBuys.Len()
	if existingTotal <= cfg.TotalOrders && existingSells.Len() <= sellCount && existingBuys.Len() <= buyCount {
		return plan
	}

	ideal := NewPriceSet(sell.Prices...).Union(NewPriceSet(buy.Prices...))
	candidates := make([]Level, 0, existingTotal)
	for _, l := range s.Existing() {
		if !ideal.Contains(l.Price) {
			candidates = append(candidates, l)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := candidates[i].Price.Sub(mid).Abs()
		dj := candidates[j].Price.Sub(mid).Abs()
		if c := di.Cmp(dj); c != 0 {
			return c > 0
		}
		if candidates[i].Side != candidates[j].Side {
			return candidates[i].Side == SideSell
		}
		return candidates[i].Price.GreaterThan(candidates[j].Price)
	})

	excess := existingTotal - cfg.TotalOrders
	limit := len(candidates)
	if excess > limit {
		limit = excess
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}
	if limit > cfg.MaxCancelPerCycle {
		limit = cfg.MaxCancelPerCycle
	}
	if limit < 0 {
		limit = 0
	}

	plan.ToCancel = append(plan.ToCancel, candidates[:limit]...)
	return plan
}
