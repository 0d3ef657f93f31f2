package position

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"grid-trader/internal/await"
	"grid-trader/internal/config"
)

// Gate 是每轮开始前的环境就绪检查：账户可读且计价币种可用余额达到下限。
type Gate struct {
	client     BalanceClient
	cfg        config.ReadinessConfig
	currencies []string
	logger     *zap.Logger
}

// NewGate 创建就绪检查。
func NewGate(client BalanceClient, cfg config.ReadinessConfig, currencies []string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		client:     client,
		cfg:        cfg,
		currencies: currencies,
		logger:     logger,
	}
}

// EnsureReady 最多检查 MaxChecks 次，每次间隔 CheckDelay。
// 返回 false 表示始终未就绪；只有 ctx 取消时才返回错误。
func (g *Gate) EnsureReady(ctx context.Context) (bool, error) {
	var last QuoteBalance
	policy := await.Policy{Attempts: g.cfg.MaxChecks, Interval: g.cfg.CheckDelay}

	attempts, err := await.Until(ctx, policy, func(ctx context.Context) (bool, error) {
		balance, err := FetchQuoteBalance(ctx, g.client, g.currencies)
		if err != nil {
			return false, err
		}
		last = balance
		if balance.Currency == "" {
			return false, fmt.Errorf("position: 未找到计价币种余额 %v", g.currencies)
		}
		return balance.Free >= g.cfg.MinFreeBalance, nil
	})

	switch {
	case err == nil:
		if attempts > 1 {
			g.logger.Info("环境检查通过", zap.Int("attempts", attempts))
		}
		return true, nil
	case errors.Is(err, await.ErrExhausted):
		g.logger.Warn("环境未就绪",
			zap.Int("attempts", attempts),
			zap.String("currency", last.Currency),
			zap.Float64("free", last.Free),
			zap.Float64("required", g.cfg.MinFreeBalance),
			zap.Error(err),
		)
		return false, nil
	default:
		return false, err
	}
}
