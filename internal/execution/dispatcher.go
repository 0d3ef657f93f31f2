package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-trader/internal/await"
	"grid-trader/internal/config"
	"grid-trader/internal/grid"
)

// Dispatcher 顺序执行对账计划：先买后卖逐笔下单，再逐笔撤单。
type Dispatcher struct {
	gateway OrderGateway
	prices  MidPriceSource
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewDispatcher 创建执行器。prices 为空时临近保护使用计划中的中间价。
func NewDispatcher(gateway OrderGateway, prices MidPriceSource, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		gateway: gateway,
		prices:  prices,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute 执行一轮计划。单笔失败只记录不中断，只有 ctx 取消才返回错误。
func (d *Dispatcher) Execute(ctx context.Context, plan grid.Plan, cfg config.GridConfig) (report Report, err error) {
	report = Report{
		Actions:   make([]Action, 0, len(plan.ToPlace)+len(plan.ToCancel)),
		StartedAt: d.now().UTC(),
	}
	defer func() { report.FinishedAt = d.now().UTC() }()

	placements := append(plan.Placements(grid.SideBuy), plan.Placements(grid.SideSell)...)
	for _, level := range placements {
		if err = ctx.Err(); err != nil {
			return report, err
		}

		report.record(d.place(ctx, level, &report))

		if err = await.Sleep(ctx, d.opts.OrderCooldown); err != nil {
			return report, err
		}
	}

	interval := decimal.NewFromFloat(cfg.Interval)
	for _, level := range plan.ToCancel {
		if err = ctx.Err(); err != nil {
			return report, err
		}

		mid := d.liveMid(ctx, plan.MidPrice)
		if level.Price.Sub(mid).Abs().LessThanOrEqual(interval) {
			d.logger.Info("挂单临近中间价，跳过撤单",
				zap.String("level", level.String()),
				zap.String("mid", mid.String()),
			)
			report.record(Action{Level: level, Outcome: OutcomeCancelSkipped})
			continue
		}

		report.record(d.cancel(ctx, level))

		if err = await.Sleep(ctx, d.opts.CancelDelay); err != nil {
			return report, err
		}
	}

	d.logger.Info("执行完成",
		zap.Int("placed", report.Placed),
		zap.Int("place_failed", report.PlaceFailed),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("cancel_skipped", report.CancelSkipped),
		zap.Int("cancel_not_found", report.NotFound),
		zap.Int("cancel_timeout", report.TimedOut),
	)
	return report, nil
}

func (d *Dispatcher) place(ctx context.Context, level grid.Level, report *Report) Action {
	id, err := d.gateway.Place(ctx, level)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrPlacementFailed, level, err)
		d.logger.Warn("下单失败，跳过", zap.String("level", level.String()), zap.Error(err))
		return Action{Level: level, Outcome: OutcomePlaceFailed, Error: err.Error()}
	}

	if d.opts.ConfirmPlacement {
		policy := await.WithTimeout(d.opts.PlacementConfirmTimeout, d.opts.CancelPollInterval)
		if _, err := await.Until(ctx, policy, func(ctx context.Context) (bool, error) {
			return d.gateway.Resting(ctx, level)
		}); err != nil {
			err = fmt.Errorf("%w: %s 未确认挂单: %w", ErrPlacementFailed, level, err)
			d.logger.Warn("下单未确认", zap.String("level", level.String()), zap.Error(err))
			return Action{Level: level, Outcome: OutcomePlaceFailed, OrderID: id, Error: err.Error()}
		}
	}

	report.LastOrderTime = d.now().UTC()
	d.logger.Info("下单成功", zap.String("level", level.String()), zap.String("order_id", id))
	return Action{Level: level, Outcome: OutcomePlaced, OrderID: id}
}

func (d *Dispatcher) cancel(ctx context.Context, level grid.Level) Action {
	status, err := d.gateway.Cancel(ctx, level)
	if err != nil {
		d.logger.Warn("撤单失败", zap.String("level", level.String()), zap.Error(err))
		return Action{Level: level, Outcome: OutcomeCancelFailed, Error: err.Error()}
	}

	switch status {
	case grid.CancelNotFound:
		d.logger.Info("撤单目标不存在", zap.String("level", level.String()))
		return Action{Level: level, Outcome: OutcomeCancelNotFound}
	case grid.CancelTimedOut:
		err := fmt.Errorf("%w: %s", ErrCancelTimeout, level)
		d.logger.Warn("撤单请求超时", zap.String("level", level.String()), zap.Error(err))
		return Action{Level: level, Outcome: OutcomeCancelTimeout, Error: err.Error()}
	}

	policy := await.WithTimeout(d.opts.CancelConfirmTimeout, d.opts.CancelPollInterval)
	attempts, err := await.Until(ctx, policy, func(ctx context.Context) (bool, error) {
		resting, err := d.gateway.Resting(ctx, level)
		if err != nil {
			return false, err
		}
		return !resting, nil
	})
	if err != nil {
		if errors.Is(err, await.ErrExhausted) {
			err = fmt.Errorf("%w: %s: %w", ErrCancelTimeout, level, err)
		}
		d.logger.Warn("撤单确认超时，留待下一轮",
			zap.String("level", level.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return Action{Level: level, Outcome: OutcomeCancelTimeout, Error: err.Error()}
	}

	d.logger.Info("撤单成功", zap.String("level", level.String()), zap.Int("attempts", attempts))
	return Action{Level: level, Outcome: OutcomeCancelled}
}

func (d *Dispatcher) liveMid(ctx context.Context, fallback decimal.Decimal) decimal.Decimal {
	if d.prices == nil {
		return fallback
	}
	mid, err := d.prices.MidPrice(ctx)
	if err != nil {
		d.logger.Warn("获取实时中间价失败，使用计划中间价", zap.Error(err))
		return fallback
	}
	return mid
}
