package await

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted 表示在允许的尝试次数内条件始终未满足。
var ErrExhausted = errors.New("await: 超过最大尝试次数，条件仍未满足")

// Condition 为待轮询的条件，返回 true 表示已满足。
type Condition func(ctx context.Context) (bool, error)

// Policy 控制轮询次数与间隔。
type Policy struct {
	Attempts int
	Interval time.Duration
}

// WithTimeout 按总超时与轮询间隔推导出尝试次数，至少一次。
func WithTimeout(timeout, interval time.Duration) Policy {
	attempts := 1
	if interval > 0 && timeout > 0 {
		attempts = int((timeout + interval - 1) / interval)
	}
	if attempts < 1 {
		attempts = 1
	}
	return Policy{Attempts: attempts, Interval: interval}
}

// Until 按固定间隔轮询条件，最多 Attempts 次，返回实际尝试次数。
// 条件返回的错误不会中断轮询，只在最终超时时附带最后一次错误。
func Until(ctx context.Context, policy Policy, cond Condition) (int, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, ctxErr
		}

		ok, err := cond(ctx)
		if err == nil && ok {
			return attempt, nil
		}
		if err != nil {
			lastErr = err
		}

		if attempt == attempts || policy.Interval <= 0 {
			continue
		}

		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return attempts, fmt.Errorf("%w: 最后一次错误: %v", ErrExhausted, lastErr)
	}
	return attempts, ErrExhausted
}

// Sleep 等待指定时长，ctx 取消时提前返回。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
