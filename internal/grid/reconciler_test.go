package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trader/internal/config"
)

func levelStrings(levels []Level) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.String())
	}
	return out
}

func reconcile(t *testing.T, snap Snapshot, cfg config.GridConfig) Plan {
	t.Helper()
	sell, buy := PlanLadders(snap, cfg)
	return Reconcile(sell, buy, snap, cfg)
}

func TestReconcile_EmptyBookPlacesWholeLadder(t *testing.T) {
	cfg := config.DefaultGrid()
	snap := mustSnapshot(t, "80100", "80000", nil, nil)

	plan := reconcile(t, snap, cfg)
	assert.Equal(t, []string{
		"buy-79980", "buy-79950", "buy-79920", "buy-79890",
		"sell-80130", "sell-80160", "sell-80190", "sell-80220",
	}, levelStrings(plan.ToPlace))
	assert.Empty(t, plan.ToCancel)
	assert.Equal(t, "80050", plan.MidPrice.String())
}

func TestReconcile_ExcessSellCancelsFarthest(t *testing.T) {
	cfg := config.DefaultGrid()
	snap := mustSnapshot(t, "80100", "80000", ds("80130", "80160", "80190", "80220", "80250"), nil)

	plan := reconcile(t, snap, cfg)
	assert.Empty(t, plan.Placements(SideSell))
	assert.Len(t, plan.Placements(SideBuy), 4)
	assert.Equal(t, []string{"sell-80250"}, levelStrings(plan.ToCancel))
}

func TestReconcile_NoCancelWithinBudget(t *testing.T) {
	cfg := config.DefaultGrid()
	// 80400 不在理想阶梯中，但总数与单侧数量均未超标，不触发撤单。
	snap := mustSnapshot(t, "80100", "80000", ds("80130", "80400"), ds("79980"))

	plan := reconcile(t, snap, cfg)
	assert.Empty(t, plan.ToCancel)
	assert.Equal(t, []string{
		"buy-79950", "buy-79920", "buy-79890",
		"sell-80160", "sell-80190", "sell-80220",
	}, levelStrings(plan.ToPlace))
}

func TestReconcile_RanksAcrossSidesByDistance(t *testing.T) {
	cfg := config.DefaultGrid()
	sells := ds("80130", "80160", "80190", "80220", "80600", "81000")
	buys := ds("79980", "79950", "79920", "79890", "79700", "79000")
	snap := mustSnapshot(t, "80100", "80000", sells, buys)

	plan := reconcile(t, snap, cfg)
	// 距离中间价 80050：79000=1050, 81000=950, 80600=550, 79700=350。
	assert.Equal(t, []string{"buy-79000", "sell-81000", "sell-80600", "buy-79700"}, levelStrings(plan.ToCancel))
	assert.Empty(t, plan.ToPlace)
}

func TestReconcile_CapsCancellations(t *testing.T) {
	cfg := config.DefaultGrid()
	cfg.MaxCancelPerCycle = 3

	sells := make([]decimal.Decimal, 0, 20)
	for i := 0; i < 20; i++ {
		sells = append(sells, decimal.NewFromInt(int64(81000+i*30)))
	}
	snap := mustSnapshot(t, "80100", "80000", sells, nil)

	plan := reconcile(t, snap, cfg)
	require.Len(t, plan.ToCancel, 3)
	assert.Equal(t, []string{"sell-81570", "sell-81540", "sell-81510"}, levelStrings(plan.ToCancel))
}

func TestReconcile_CancellationOrderingInvariant(t *testing.T) {
	cfg := config.DefaultGrid()
	cfg.MaxCancelPerCycle = 5
	sells := ds("80130", "80500", "80900", "81300", "81700")
	buys := ds("79980", "79600", "79200", "78800", "78400")
	snap := mustSnapshot(t, "80100", "80000", sells, buys)

	plan := reconcile(t, snap, cfg)
	mid := plan.MidPrice

	cancelled := make(map[string]bool, len(plan.ToCancel))
	minCancelled := decimal.Zero
	for i, l := range plan.ToCancel {
		cancelled[l.String()] = true
		dist := l.Price.Sub(mid).Abs()
		if i == 0 || dist.LessThan(minCancelled) {
			minCancelled = dist
		}
	}

	sell, buy := PlanLadders(snap, cfg)
	ideal := NewPriceSet(sell.Prices...).Union(NewPriceSet(buy.Prices...))
	for _, l := range snap.Existing() {
		if ideal.Contains(l.Price) || cancelled[l.String()] {
			continue
		}
		assert.True(t, l.Price.Sub(mid).Abs().LessThanOrEqual(minCancelled),
			"retained %s is farther than a cancelled order", l)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	cfg := config.DefaultGrid()
	snap := mustSnapshot(t, "80100", "80000", ds("80160"), ds("79950", "79000"))

	plan := reconcile(t, snap, cfg)
	require.NotEmpty(t, plan.ToPlace)

	sells := snap.Sells().Ascending()
	buys := snap.Buys().Ascending()
	for _, l := range plan.ToPlace {
		if l.Side == SideSell {
			sells = append(sells, l.Price)
		} else {
			buys = append(buys, l.Price)
		}
	}
	next := mustSnapshot(t, "80100", "80000", sells, buys)

	again := reconcile(t, next, cfg)
	assert.Empty(t, again.ToPlace)
	assert.Equal(t, []string{"buy-79000"}, levelStrings(again.ToCancel))
}

func TestReconcile_Deterministic(t *testing.T) {
	cfg := config.DefaultGrid()
	snap := mustSnapshot(t, "80100", "80000", ds("80130", "80700", "80190", "80220", "80250"), ds("79400", "79980"))

	first := reconcile(t, snap, cfg)
	for i := 0; i < 5; i++ {
		again := reconcile(t, snap, cfg)
		assert.Equal(t, levelStrings(first.ToPlace), levelStrings(again.ToPlace))
		assert.Equal(t, levelStrings(first.ToCancel), levelStrings(again.ToCancel))
	}
}

func TestPriceSet_ContainsAndUnion(t *testing.T) {
	a := NewPriceSet(ds("3", "1", "2", "2.00")...)
	b := NewPriceSet(ds("4", "1")...)

	assert.Equal(t, 3, a.Len())
	assert.True(t, a.Contains(d("2.0")))
	assert.False(t, a.Contains(d("2.5")))
	assert.Equal(t, []string{"1", "2", "3", "4"}, strs(a.Union(b).Ascending()))
	assert.Equal(t, []string{"3", "2", "1"}, strs(a.Descending()))
}

func TestLevel_Equal(t *testing.T) {
	a := Level{Side: SideSell, Price: d("80130")}

	assert.True(t, a.Equal(Level{Side: SideSell, Price: d("80130.00")}))
	assert.False(t, a.Equal(Level{Side: SideBuy, Price: d("80130")}))
	assert.False(t, a.Equal(Level{Side: SideSell, Price: d("80160")}))
}
