package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"grid-trader/internal/grid"
)

// Gateway 基于交易所客户端实现按价位下单与撤单。
type Gateway struct {
	client *Client
	logger *zap.Logger
}

// NewGateway 创建实盘下单网关。
func NewGateway(client *Client, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{client: client, logger: logger}
}

// Place 在指定档位提交限价单，返回订单号。
func (g *Gateway) Place(ctx context.Context, level grid.Level) (string, error) {
	order, err := g.client.CreateLimitOrder(ctx, level)
	if err != nil {
		return "", fmt.Errorf("exchange: 提交限价单失败 %s: %w", level, err)
	}
	g.logger.Debug("限价单已提交",
		zap.String("level", level.String()),
		zap.String("order_id", order.ID),
		zap.String("client_order_id", order.ClientOrderID),
	)
	return order.ID, nil
}

// Cancel 按价位撤单：先在挂单中定位该档位的订单，再逐一撤销。
func (g *Gateway) Cancel(ctx context.Context, level grid.Level) (grid.CancelStatus, error) {
	orders, err := g.client.OpenOrders(ctx)
	if err != nil {
		if IsTimeout(err) {
			return grid.CancelTimedOut, nil
		}
		return "", fmt.Errorf("exchange: 查询挂单失败: %w", err)
	}

	matched := matchLevel(orders, level)
	if len(matched) == 0 {
		return grid.CancelNotFound, nil
	}

	var (
		acknowledged bool
		timedOut     bool
		firstErr     error
	)
	for _, order := range matched {
		err := g.client.CancelOrder(ctx, order.ID)
		switch {
		case err == nil:
			acknowledged = true
		case errors.Is(err, ErrOrderNotFound):
			g.logger.Debug("撤单时订单已不存在", zap.String("order_id", order.ID))
		case IsTimeout(err):
			timedOut = true
			g.logger.Warn("撤单请求超时", zap.String("order_id", order.ID), zap.Error(err))
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("exchange: 撤单失败 %s: %w", level, err)
			}
			g.logger.Warn("撤单失败", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	switch {
	case acknowledged:
		// 同档位其余订单若仍在挂，由撤单确认轮询发现并留待下一轮。
		return grid.CancelAcknowledged, nil
	case firstErr != nil:
		return "", firstErr
	case timedOut:
		return grid.CancelTimedOut, nil
	default:
		return grid.CancelNotFound, nil
	}
}

// Resting 报告指定档位上是否仍有挂单。
func (g *Gateway) Resting(ctx context.Context, level grid.Level) (bool, error) {
	orders, err := g.client.OpenOrders(ctx)
	if err != nil {
		return false, err
	}
	return len(matchLevel(orders, level)) > 0, nil
}

func matchLevel(orders []OpenOrder, level grid.Level) []OpenOrder {
	out := make([]OpenOrder, 0, 1)
	for _, o := range orders {
		if o.Level().Equal(level) {
			out = append(out, o)
		}
	}
	return out
}
