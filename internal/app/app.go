package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"grid-trader/internal/config"
	"grid-trader/internal/exchange"
	"grid-trader/internal/execution"
	"grid-trader/internal/lease"
	"grid-trader/internal/monitor"
	"grid-trader/internal/position"
	"grid-trader/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装网格流水线并阻塞运行，直到收到退出信号或停止请求。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("网格系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("market", a.cfg.Exchange.Market),
		zap.Bool("simulation", a.cfg.Execution.Simulation),
	)

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	var (
		orders   exchange.OrderSource = client
		gateway  execution.OrderGateway
		balances position.BalanceClient = client
	)
	if a.cfg.Execution.Simulation {
		paper := exchange.NewPaperBook(a.cfg.Exchange.OrderAmount, paperBalance(a.cfg), a.logger)
		orders = paper
		gateway = paper
		balances = paper
		a.logger.Info("执行器处于演练模式，挂单仅保存在内存中")
	} else {
		gateway = exchange.NewGateway(client, a.logger)
	}

	market := exchange.NewMarketDataService(client, orders, a.cfg.Exchange.OrderBookDepth, a.logger)
	gate := position.NewGate(balances, a.cfg.Readiness, a.cfg.Exchange.QuoteCurrency, a.logger)
	dispatcher := execution.NewDispatcher(gateway, market, execution.OptionsFromConfig(a.cfg.Execution), a.logger)

	cycleLease := lease.New(a.cfg.Lease, a.logger)
	defer func() {
		if err := cycleLease.Close(); err != nil {
			a.logger.Warn("关闭租约连接失败", zap.Error(err))
		}
	}()

	var (
		events eventLister
		jr     journal
	)
	if a.store != nil {
		monitorSvc, err := monitor.NewService(a.store, a.logger)
		if err != nil {
			return fmt.Errorf("初始化监控服务失败: %w", err)
		}
		events = monitorSvc
		jr = monitorSvc
	}

	tuning := newGridTuning(a.cfg.Grid)
	orch := newOrchestrator(orchestratorDeps{
		market:     market,
		gate:       gate,
		dispatcher: dispatcher,
		lease:      cycleLease,
		journal:    jr,
		tuning:     tuning,
	}, a.logger)

	scheduler := NewScheduler(func(ctx context.Context) { orch.Tick(ctx) }, a.cfg.Scheduler, a.logger)

	if a.cfg.Monitor.Enabled {
		router := newRouter(&server{
			orch:      orch,
			scheduler: scheduler,
			tuning:    tuning,
			events:    events,
			journal:   jr,
			logger:    a.logger,
		})
		if err := startMonitorServer(ctx, router, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	if err := scheduler.Run(ctx); err != nil {
		return fmt.Errorf("调度器异常退出: %w", err)
	}
	a.logger.Info("系统已停止", zap.Uint64("cycles", orch.Status().Cycles))
	return nil
}

// paperBalance 为演练账户在每种计价币种上提供恰好满足就绪门槛的余额。
func paperBalance(cfg *config.Config) map[string]float64 {
	out := make(map[string]float64, len(cfg.Exchange.QuoteCurrency))
	for _, code := range cfg.Exchange.QuoteCurrency {
		out[strings.ToUpper(strings.TrimSpace(code))] = cfg.Readiness.MinFreeBalance
	}
	return out
}
