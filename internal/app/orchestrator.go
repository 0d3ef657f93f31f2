package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grid-trader/internal/config"
	"grid-trader/internal/execution"
	"grid-trader/internal/grid"
	"grid-trader/internal/lease"
	"grid-trader/internal/monitor"
)

// ErrEnvironmentNotReady 表示就绪检查未通过，本轮在规划前中止。
var ErrEnvironmentNotReady = errors.New("app: 环境未就绪")

type snapshotSource interface {
	Fetch(ctx context.Context) (grid.Snapshot, error)
}

type readinessGate interface {
	EnsureReady(ctx context.Context) (bool, error)
}

type planExecutor interface {
	Execute(ctx context.Context, plan grid.Plan, cfg config.GridConfig) (execution.Report, error)
}

type journal interface {
	RecordCycle(ctx context.Context, report monitor.CycleReport)
	RecordNotReady(ctx context.Context, payload monitor.NotReadyPayload)
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
	RecordConfigChange(ctx context.Context, previous, current config.GridConfig, source string)
}

// Status 为对外展示的运行状态。
type Status struct {
	State         SchedulerState       `json:"state"`
	Running       bool                 `json:"running"`
	Cycles        uint64               `json:"cycles"`
	LastOrderTime *time.Time           `json:"last_order_time,omitempty"`
	LastCycle     *monitor.CycleReport `json:"last_cycle,omitempty"`
	Grid          config.GridConfig    `json:"grid"`
}

type orchestrator struct {
	market     snapshotSource
	gate       readinessGate
	dispatcher planExecutor
	lease      lease.Lease
	journal    journal
	tuning     *gridTuning
	logger     *zap.Logger

	cycles atomic.Uint64

	mu            sync.RWMutex
	lastOrderTime time.Time
	lastReport    *monitor.CycleReport
}

type orchestratorDeps struct {
	market     snapshotSource
	gate       readinessGate
	dispatcher planExecutor
	lease      lease.Lease
	journal    journal
	tuning     *gridTuning
}

func newOrchestrator(deps orchestratorDeps, logger *zap.Logger) *orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.lease == nil {
		deps.lease = lease.Noop{}
	}
	return &orchestrator{
		market:     deps.market,
		gate:       deps.gate,
		dispatcher: deps.dispatcher,
		lease:      deps.lease,
		journal:    deps.journal,
		tuning:     deps.tuning,
		logger:     logger,
	}
}

// Tick 执行一轮完整流程：租约 → 就绪检查 → 行情快照 → 规划 → 对账 → 执行。
// 任何失败都只体现在返回的报告中，不会中断调度。
func (o *orchestrator) Tick(ctx context.Context) monitor.CycleReport {
	cfg := o.tuning.Load()
	report := monitor.CycleReport{
		CycleID:   uuid.NewString(),
		Cycle:     o.cycles.Add(1),
		Grid:      cfg,
		StartedAt: time.Now().UTC(),
	}
	logger := o.logger.With(zap.String("cycle_id", report.CycleID), zap.Uint64("cycle", report.Cycle))

	defer func() {
		report.Elapsed = time.Since(report.StartedAt)
		o.finish(ctx, logger, report)
	}()

	release, err := o.lease.Acquire(ctx)
	if err != nil {
		report.Outcome = monitor.OutcomeLeaseHeld
		report.Error = err.Error()
		if !errors.Is(err, lease.ErrNotAcquired) {
			logger.Warn("获取租约失败，跳过本轮", zap.Error(err))
		}
		return report
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			logger.Warn("释放租约失败", zap.Error(err))
		}
	}()

	ready, err := o.gate.EnsureReady(ctx)
	if err != nil {
		report.Outcome = monitor.OutcomeFailed
		report.Error = err.Error()
		return report
	}
	if !ready {
		report.Outcome = monitor.OutcomeNotReady
		report.Error = ErrEnvironmentNotReady.Error()
		logger.Warn("环境未就绪，本轮中止，请检查账户状态")
		if o.journal != nil {
			o.journal.RecordNotReady(ctx, monitor.NotReadyPayload{
				CycleID: report.CycleID,
				Cycle:   report.Cycle,
				Message: ErrEnvironmentNotReady.Error(),
			})
		}
		return report
	}

	snapshot, err := o.market.Fetch(ctx)
	if err != nil {
		report.Error = err.Error()
		if errors.Is(err, grid.ErrDataUnavailable) {
			report.Outcome = monitor.OutcomeDataUnavailable
			logger.Warn("行情不可用，跳过本轮", zap.Error(err))
		} else {
			report.Outcome = monitor.OutcomeFailed
		}
		return report
	}

	window := grid.ComputeWindow(snapshot, cfg)
	sell, buy := grid.PlanLadders(snapshot, cfg)
	plan := grid.Reconcile(sell, buy, snapshot, cfg)
	report.Window = &window
	report.Plan = &plan

	logger.Info("网格规划完成",
		zap.String("mid", window.Mid.String()),
		zap.String("half_window", window.HalfWindow.String()),
		zap.Int("ideal_sells", sell.Len()),
		zap.Int("ideal_buys", buy.Len()),
		zap.Int("to_place", len(plan.ToPlace)),
		zap.Int("to_cancel", len(plan.ToCancel)),
	)

	if plan.Empty() {
		report.Outcome = monitor.OutcomeCompleted
		return report
	}

	execReport, err := o.dispatcher.Execute(ctx, plan, cfg)
	report.Execution = &execReport
	if !execReport.LastOrderTime.IsZero() {
		o.mu.Lock()
		o.lastOrderTime = execReport.LastOrderTime
		o.mu.Unlock()
	}
	if err != nil {
		report.Outcome = monitor.OutcomeFailed
		report.Error = err.Error()
		return report
	}

	report.Outcome = monitor.OutcomeCompleted
	return report
}

func (o *orchestrator) finish(ctx context.Context, logger *zap.Logger, report monitor.CycleReport) {
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	r := report
	o.lastReport = &r
	o.mu.Unlock()

	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.Duration("elapsed", report.Elapsed),
	}
	switch report.Outcome {
	case monitor.OutcomeCompleted:
		logger.Info("网格周期完成", fields...)
	case monitor.OutcomeFailed:
		logger.Error("网格周期失败", append(fields, zap.String("error", report.Error))...)
		if o.journal != nil {
			o.journal.RecordError(ctx, "网格周期失败", errors.New(report.Error), map[string]interface{}{
				"cycle_id": report.CycleID,
				"cycle":    report.Cycle,
			})
		}
	default:
		logger.Info("网格周期跳过", fields...)
	}

	if o.journal != nil {
		o.journal.RecordCycle(ctx, report)
	}
}

// Status 返回当前运行状态。
func (o *orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := Status{
		Cycles: o.cycles.Load(),
		Grid:   o.tuning.Load(),
	}
	if !o.lastOrderTime.IsZero() {
		ts := o.lastOrderTime
		status.LastOrderTime = &ts
	}
	if o.lastReport != nil {
		r := *o.lastReport
		status.LastCycle = &r
	}
	return status
}

// Reset 清空周期计数与最近下单时间。
func (o *orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles.Store(0)
	o.lastOrderTime = time.Time{}
	o.lastReport = nil
}
