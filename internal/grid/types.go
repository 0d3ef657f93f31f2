package grid

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDataUnavailable 表示行情缺失或异常，本轮应整体跳过。
var ErrDataUnavailable = errors.New("grid: 行情数据不可用")

// Side 表示挂单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// CancelStatus 为网关撤单请求的结果。
type CancelStatus string

const (
	CancelAcknowledged CancelStatus = "acknowledged"
	CancelNotFound     CancelStatus = "not_found"
	CancelTimedOut     CancelStatus = "timeout"
)

// Level 是某一方向上的一个挂单价位。
type Level struct {
	Side  Side            `json:"side"`
	Price decimal.Decimal `json:"price"`
}

func (l Level) String() string {
	return fmt.Sprintf("%s-%s", l.Side, l.Price.String())
}

// Equal 判断两个档位方向相同且价格数值相等。
func (l Level) Equal(other Level) bool {
	return l.Side == other.Side && l.Price.Equal(other.Price)
}

// Snapshot 为一次读取到的盘口与现有挂单，构造后不可修改。
type Snapshot struct {
	ask   decimal.Decimal
	bid   decimal.Decimal
	sells PriceSet
	buys  PriceSet
}

// NewSnapshot 校验报价并构造快照。买一或卖一非正、或卖一低于买一（交叉/陈旧报价）时返回 ErrDataUnavailable。
func NewSnapshot(ask, bid decimal.Decimal, sells, buys []decimal.Decimal) (Snapshot, error) {
	if !ask.IsPositive() || !bid.IsPositive() {
		return Snapshot{}, fmt.Errorf("%w: ask=%s bid=%s", ErrDataUnavailable, ask.String(), bid.String())
	}
	if ask.LessThan(bid) {
		return Snapshot{}, fmt.Errorf("%w: 报价交叉 ask=%s < bid=%s", ErrDataUnavailable, ask.String(), bid.String())
	}
	return Snapshot{
		ask:   ask,
		bid:   bid,
		sells: NewPriceSet(positive(sells)...),
		buys:  NewPriceSet(positive(buys)...),
	}, nil
}

// Ask 返回卖一价。
func (s Snapshot) Ask() decimal.Decimal { return s.ask }

// Bid 返回买一价。
func (s Snapshot) Bid() decimal.Decimal { return s.bid }

// Sells 返回现有卖单价位集合。
func (s Snapshot) Sells() PriceSet { return s.sells }

// Buys 返回现有买单价位集合。
func (s Snapshot) Buys() PriceSet { return s.buys }

// MidPrice 返回 (ask+bid)/2。
func (s Snapshot) MidPrice() decimal.Decimal {
	return s.ask.Add(s.bid).Div(decimal.NewFromInt(2))
}

// Existing 以方向分组返回现有挂单，卖单升序、买单降序。
func (s Snapshot) Existing() []Level {
	levels := make([]Level, 0, s.sells.Len()+s.buys.Len())
	for _, p := range s.sells.Ascending() {
		levels = append(levels, Level{Side: SideSell, Price: p})
	}
	for _, p := range s.buys.Descending() {
		levels = append(levels, Level{Side: SideBuy, Price: p})
	}
	return levels
}

// Ladder 为某一方向的理想价位序列，由近及远排列，相邻价位间距恒为 interval。
type Ladder struct {
	Side   Side              `json:"side"`
	Prices []decimal.Decimal `json:"prices"`
}

// Len 返回价位数量。
func (l Ladder) Len() int { return len(l.Prices) }

// Window 描述本轮的中间价与半窗口宽度。
type Window struct {
	Mid        decimal.Decimal `json:"mid"`
	HalfWindow decimal.Decimal `json:"half_window"`
	SellCount  int             `json:"sell_count"`
	BuyCount   int             `json:"buy_count"`
}

// Plan 为一轮对账结果：需要新挂的单与需要撤销的单。
type Plan struct {
	MidPrice decimal.Decimal `json:"mid_price"`
	ToPlace  []Level         `json:"to_place"`
	ToCancel []Level         `json:"to_cancel"`
}

// Placements 返回指定方向上需要新挂的单，保持原有顺序。
func (p Plan) Placements(side Side) []Level {
	out := make([]Level, 0, len(p.ToPlace))
	for _, l := range p.ToPlace {
		if l.Side == side {
			out = append(out, l)
		}
	}
	return out
}

// Empty 报告本轮是否无需任何操作。
func (p Plan) Empty() bool {
	return len(p.ToPlace) == 0 && len(p.ToCancel) == 0
}

func positive(prices []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(prices))
	for _, p := range prices {
		if p.IsPositive() {
			out = append(out, p)
		}
	}
	return out
}
