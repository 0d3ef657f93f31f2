package exchange

import (
	"context"
	"sort"
	"sync"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"grid-trader/internal/grid"
)

// PaperBook 是内存中的挂单簿，用于演练模式：只记录挂单，不做撮合。
type PaperBook struct {
	mu      sync.Mutex
	orders  map[string]OpenOrder
	amount  float64
	balance map[string]float64
	logger  *zap.Logger
}

// NewPaperBook 创建内存挂单簿，balance 为演练账户的可用余额。
func NewPaperBook(amount float64, balance map[string]float64, logger *zap.Logger) *PaperBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[string]float64, len(balance))
	for k, v := range balance {
		copied[k] = v
	}
	return &PaperBook{
		orders:  make(map[string]OpenOrder),
		amount:  amount,
		balance: copied,
		logger:  logger,
	}
}

// Place 记录一笔挂单。
func (p *PaperBook) Place(ctx context.Context, level grid.Level) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()

	p.mu.Lock()
	p.orders[id] = OpenOrder{
		ID:            id,
		ClientOrderID: id,
		Side:          level.Side,
		Price:         level.Price,
		Amount:        p.amount,
	}
	p.mu.Unlock()

	p.logger.Debug("演练挂单", zap.String("level", level.String()), zap.String("order_id", id))
	return id, nil
}

// Cancel 撤销该档位上的全部挂单。
func (p *PaperBook) Cancel(ctx context.Context, level grid.Level) (grid.CancelStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, o := range p.orders {
		if o.Level().Equal(level) {
			delete(p.orders, id)
			removed++
		}
	}
	if removed == 0 {
		return grid.CancelNotFound, nil
	}
	return grid.CancelAcknowledged, nil
}

// Resting 报告该档位上是否仍有挂单。
func (p *PaperBook) Resting(_ context.Context, level grid.Level) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.Level().Equal(level) {
			return true, nil
		}
	}
	return false, nil
}

// OpenOrders 返回按方向、价格排序的挂单副本。
func (p *PaperBook) OpenOrders(_ context.Context) ([]OpenOrder, error) {
	p.mu.Lock()
	out := make([]OpenOrder, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Side != out[j].Side {
			return out[i].Side < out[j].Side
		}
		if c := out[i].Price.Cmp(out[j].Price); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FetchBalance 返回演练账户余额。
func (p *PaperBook) FetchBalance(_ context.Context) (ccxt.Balances, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := make(map[string]*float64, len(p.balance))
	total := make(map[string]*float64, len(p.balance))
	for code, amount := range p.balance {
		f := amount
		t := amount
		free[code] = &f
		total[code] = &t
	}
	return ccxt.Balances{Free: free, Total: total}, nil
}
