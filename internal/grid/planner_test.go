package grid

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trader/internal/config"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ds(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, d(v))
	}
	return out
}

func strs(prices []decimal.Decimal) []string {
	out := make([]string, 0, len(prices))
	for _, p := range prices {
		out = append(out, p.String())
	}
	return out
}

func mustSnapshot(t *testing.T, ask, bid string, sells, buys []decimal.Decimal) Snapshot {
	t.Helper()
	snap, err := NewSnapshot(d(ask), d(bid), sells, buys)
	require.NoError(t, err)
	return snap
}

func TestPlanLadders_ReferenceScenario(t *testing.T) {
	cfg := config.DefaultGrid()
	snap := mustSnapshot(t, "80100", "80000", nil, nil)

	w := ComputeWindow(snap, cfg)
	assert.Equal(t, "80050", w.Mid.String())
	assert.Equal(t, "4803", w.HalfWindow.String())
	assert.Equal(t, 4, w.SellCount)
	assert.Equal(t, 4, w.BuyCount)

	sell, buy := PlanLadders(snap, cfg)
	assert.Equal(t, SideSell, sell.Side)
	assert.Equal(t, SideBuy, buy.Side)
	assert.Equal(t, []string{"80130", "80160", "80190", "80220"}, strs(sell.Prices))
	assert.Equal(t, []string{"79980", "79950", "79920", "79890"}, strs(buy.Prices))
}

func TestPlanLadders_AnchorOnExactMultiple(t *testing.T) {
	cfg := config.DefaultGrid()
	// ask+gap = 80130 与 bid-gap = 79980 恰好是 30 的整数倍。
	snap := mustSnapshot(t, "80110", "80000", nil, nil)

	sell, buy := PlanLadders(snap, cfg)
	assert.Equal(t, "80130", sell.Prices[0].String())
	assert.Equal(t, "79980", buy.Prices[0].String())
}

func TestPlanLadders_SpacingAndBudget(t *testing.T) {
	cfg := config.DefaultGrid()
	cfg.TotalOrders = 9
	cfg.SellRatio = 0.55
	cfg.BuyRatio = 0.45
	snap := mustSnapshot(t, "65432.5", "65401.25", nil, nil)

	sellCount, buyCount := Counts(cfg)
	assert.Equal(t, cfg.TotalOrders, sellCount+buyCount)
	assert.Equal(t, 5, sellCount)

	sell, buy := PlanLadders(snap, cfg)
	assert.LessOrEqual(t, sell.Len(), sellCount)
	assert.LessOrEqual(t, buy.Len(), buyCount)

	interval := decimal.NewFromFloat(cfg.Interval)
	for i := 1; i < sell.Len(); i++ {
		assert.True(t, sell.Prices[i].Sub(sell.Prices[i-1]).Equal(interval))
	}
	for i := 1; i < buy.Len(); i++ {
		assert.True(t, buy.Prices[i-1].Sub(buy.Prices[i]).Equal(interval))
	}
	assert.True(t, sell.Prices[0].GreaterThanOrEqual(snap.Ask().Add(decimal.NewFromFloat(cfg.SafeGap))))
	assert.True(t, buy.Prices[0].LessThanOrEqual(snap.Bid().Sub(decimal.NewFromFloat(cfg.SafeGap))))
}

func TestPlanLadders_TruncatesAtDriftBoundary(t *testing.T) {
	cfg := config.DefaultGrid()
	cfg.TotalOrders = 40
	cfg.WindowPercent = 0.001
	cfg.MaxDriftBuffer = 0
	snap := mustSnapshot(t, "80100", "80000", nil, nil)

	// mid=80050, halfWindow=40.025，无缓冲时卖单上限 80090.025，买单下限 80009.975。
	sell, buy := PlanLadders(snap, cfg)
	assert.Empty(t, sell.Prices)
	assert.Empty(t, buy.Prices)

	cfg.MaxDriftBuffer = 100
	sell, buy = PlanLadders(snap, cfg)
	assert.Equal(t, []string{"80130", "80160", "80190"}, strs(sell.Prices))
	assert.Equal(t, []string{"79980", "79950", "79920"}, strs(buy.Prices))
}

func TestPlanLadders_StopsAtMinValidPrice(t *testing.T) {
	cfg := config.DefaultGrid()
	cfg.MinValidPrice = 79930
	snap := mustSnapshot(t, "80100", "80000", nil, nil)

	_, buy := PlanLadders(snap, cfg)
	assert.Equal(t, []string{"79980", "79950"}, strs(buy.Prices))
}

func TestPlanLadders_AllSellRatio(t *testing.T) {
	cfg := config.DefaultGrid()
	cfg.SellRatio = 1
	cfg.BuyRatio = 0
	snap := mustSnapshot(t, "80100", "80000", nil, nil)

	sell, buy := PlanLadders(snap, cfg)
	assert.Equal(t, 8, sell.Len())
	assert.Zero(t, buy.Len())
}

func TestPlanLadders_Deterministic(t *testing.T) {
	cfg := config.DefaultGrid()
	snap := mustSnapshot(t, "80100", "80000", ds("80130", "80400"), ds("79980"))

	sell1, buy1 := PlanLadders(snap, cfg)
	sell2, buy2 := PlanLadders(snap, cfg)
	assert.Equal(t, strs(sell1.Prices), strs(sell2.Prices))
	assert.Equal(t, strs(buy1.Prices), strs(buy2.Prices))
}

func TestNewSnapshot_RejectsInvalidQuotes(t *testing.T) {
	cases := []struct {
		name     string
		ask, bid string
	}{
		{"zero ask", "0", "80000"},
		{"negative bid", "80100", "-1"},
		{"crossed", "79990", "80000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSnapshot(d(tc.ask), d(tc.bid), nil, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataUnavailable))
		})
	}
}

func TestNewSnapshot_NormalizesExistingOrders(t *testing.T) {
	snap := mustSnapshot(t, "80100", "80000", ds("80190", "80130", "80130.0", "0"), ds("79950", "79980"))

	assert.Equal(t, []string{"80130", "80190"}, strs(snap.Sells().Ascending()))
	assert.Equal(t, []string{"79980", "79950"}, strs(snap.Buys().Descending()))
	assert.Len(t, snap.Existing(), 4)
}
