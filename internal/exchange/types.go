package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"grid-trader/internal/grid"
)

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
	Nonce     int64
}

// BestAsk 返回卖一价。
func (s OrderBookSnapshot) BestAsk() (float64, bool) {
	if len(s.Asks) == 0 {
		return 0, false
	}
	return s.Asks[0].Price, true
}

// BestBid 返回买一价。
func (s OrderBookSnapshot) BestBid() (float64, bool) {
	if len(s.Bids) == 0 {
		return 0, false
	}
	return s.Bids[0].Price, true
}

// OpenOrder 为一笔挂单，仅保留网格引擎关心的字段。
type OpenOrder struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Side          grid.Side       `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Amount        float64         `json:"amount"`
}

// Level 返回挂单所在的网格档位。
func (o OpenOrder) Level() grid.Level {
	return grid.Level{Side: o.Side, Price: o.Price}
}

// SplitBySide 将挂单拆分为卖单价格与买单价格。
func SplitBySide(orders []OpenOrder) (sells, buys []decimal.Decimal) {
	for _, o := range orders {
		switch o.Side {
		case grid.SideSell:
			sells = append(sells, o.Price)
		case grid.SideBuy:
			buys = append(buys, o.Price)
		}
	}
	return sells, buys
}
