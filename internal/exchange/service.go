package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grid-trader/internal/grid"
)

// QuoteSource 提供盘口数据。
type QuoteSource interface {
	FetchOrderBook(ctx context.Context, depth int64) (OrderBookSnapshot, error)
}

// OrderSource 提供当前挂单。
type OrderSource interface {
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
}

// MarketDataService 聚合盘口与挂单，生成单周期的市场快照。
type MarketDataService struct {
	quotes QuoteSource
	orders OrderSource
	depth  int64
	logger *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(quotes QuoteSource, orders OrderSource, depth int, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if depth <= 0 {
		depth = 5
	}
	return &MarketDataService{
		quotes: quotes,
		orders: orders,
		depth:  int64(depth),
		logger: logger,
	}
}

// Fetch 并发拉取盘口与挂单并构造快照。
// 任一数据无法读取时返回 grid.ErrDataUnavailable，调用方应跳过本周期。
func (s *MarketDataService) Fetch(ctx context.Context) (grid.Snapshot, error) {
	var (
		book   OrderBookSnapshot
		orders []OpenOrder
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.quotes.FetchOrderBook(groupCtx, s.depth)
		if err != nil {
			return err
		}
		book = data
		return nil
	})

	group.Go(func() error {
		data, err := s.orders.OpenOrders(groupCtx)
		if err != nil {
			return err
		}
		orders = data
		return nil
	})

	if err := group.Wait(); err != nil {
		return grid.Snapshot{}, fmt.Errorf("%w: %w", grid.ErrDataUnavailable, err)
	}

	ask, okAsk := book.BestAsk()
	bid, okBid := book.BestBid()
	if !okAsk || !okBid {
		return grid.Snapshot{}, fmt.Errorf("%w: 盘口为空 asks=%d bids=%d", grid.ErrDataUnavailable, len(book.Asks), len(book.Bids))
	}

	sells, buys := SplitBySide(orders)
	snapshot, err := grid.NewSnapshot(decimal.NewFromFloat(ask), decimal.NewFromFloat(bid), sells, buys)
	if err != nil {
		return grid.Snapshot{}, err
	}

	s.logger.Debug("市场快照获取完成",
		zap.String("symbol", book.Symbol),
		zap.String("ask", snapshot.Ask().String()),
		zap.String("bid", snapshot.Bid().String()),
		zap.Int("existing_sells", snapshot.Sells().Len()),
		zap.Int("existing_buys", snapshot.Buys().Len()),
	)

	return snapshot, nil
}

// MidPrice 读取实时盘口并返回中间价，供撤单前的临近保护使用。
func (s *MarketDataService) MidPrice(ctx context.Context) (decimal.Decimal, error) {
	book, err := s.quotes.FetchOrderBook(ctx, s.depth)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", grid.ErrDataUnavailable, err)
	}
	ask, okAsk := book.BestAsk()
	bid, okBid := book.BestBid()
	if !okAsk || !okBid || ask <= 0 || bid <= 0 {
		return decimal.Zero, fmt.Errorf("%w: 盘口价格无效", grid.ErrDataUnavailable)
	}
	return decimal.NewFromFloat(ask).Add(decimal.NewFromFloat(bid)).Div(decimal.NewFromInt(2)), nil
}
