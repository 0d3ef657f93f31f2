package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"grid-trader/internal/config"
)

// SchedulerState 为调度器状态。
type SchedulerState string

const (
	StateIdle    SchedulerState = "idle"
	StateRunning SchedulerState = "running"
	StateStopped SchedulerState = "stopped"
)

// Scheduler 以自校正间隔驱动网格周期：上一轮结束后才安排下一轮，周期之间不会重叠。
type Scheduler struct {
	cycle    func(ctx context.Context)
	interval time.Duration
	minDelay time.Duration
	logger   *zap.Logger
	now      func() time.Time

	stopped  atomic.Bool
	state    atomic.Value
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScheduler 创建调度器。
func NewScheduler(cycle func(ctx context.Context), cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CycleInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = time.Second
	}
	s := &Scheduler{
		cycle:    cycle,
		interval: interval,
		minDelay: minDelay,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	s.state.Store(StateIdle)
	return s
}

// Run 阻塞执行周期，直到 Stop 被调用或 ctx 结束。
// Stop 只阻止安排下一轮，进行中的周期会执行完毕；ctx 取消会传入进行中的周期，使其尽快中止。
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.state.Store(StateStopped)

	for {
		if s.stopped.Load() {
			s.logger.Info("调度器已停止")
			return nil
		}
		if ctx.Err() != nil {
			s.logger.Info("调度器收到退出信号")
			return nil
		}

		s.state.Store(StateRunning)
		start := s.now()
		s.cycle(ctx)
		elapsed := s.now().Sub(start)
		s.state.Store(StateIdle)

		if s.stopped.Load() {
			s.logger.Info("调度器已停止")
			return nil
		}

		delay := nextDelay(s.interval, elapsed, s.minDelay)
		s.logger.Debug("安排下一轮", zap.Duration("elapsed", elapsed), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("调度器收到退出信号")
			return nil
		case <-s.stopCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Stop 设置停止标志，不再安排新的周期。
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Stopped 报告是否已请求停止。
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

// State 返回当前状态。
func (s *Scheduler) State() SchedulerState {
	return s.state.Load().(SchedulerState)
}

// nextDelay = max(interval - elapsed, floor)
func nextDelay(interval, elapsed, floor time.Duration) time.Duration {
	delay := interval - elapsed
	if delay < floor {
		return floor
	}
	return delay
}
