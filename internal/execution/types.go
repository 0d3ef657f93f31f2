package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"grid-trader/internal/config"
	"grid-trader/internal/grid"
)

var (
	// ErrPlacementFailed 表示单笔下单被网关拒绝或未确认，本轮不重试。
	ErrPlacementFailed = errors.New("execution: 下单失败")
	// ErrCancelTimeout 表示撤单确认轮询超时，订单留待下一轮重新评估。
	ErrCancelTimeout = errors.New("execution: 撤单确认超时")
)

// OrderGateway 为外部下单网关。
type OrderGateway interface {
	Place(ctx context.Context, level grid.Level) (string, error)
	Cancel(ctx context.Context, level grid.Level) (grid.CancelStatus, error)
	Resting(ctx context.Context, level grid.Level) (bool, error)
}

// MidPriceSource 提供撤单前临近保护所需的实时中间价。
type MidPriceSource interface {
	MidPrice(ctx context.Context) (decimal.Decimal, error)
}

// Options 控制下单与撤单节奏。
type Options struct {
	OrderCooldown           time.Duration
	CancelDelay             time.Duration
	CancelConfirmTimeout    time.Duration
	CancelPollInterval      time.Duration
	ConfirmPlacement        bool
	PlacementConfirmTimeout time.Duration
}

// OptionsFromConfig 由执行配置构造 Options。
func OptionsFromConfig(cfg config.ExecutionConfig) Options {
	return Options{
		OrderCooldown:           cfg.OrderCooldown,
		CancelDelay:             cfg.CancelDelay,
		CancelConfirmTimeout:    cfg.CancelConfirmTimeout,
		CancelPollInterval:      cfg.CancelPollInterval,
		ConfirmPlacement:        cfg.ConfirmPlacement,
		PlacementConfirmTimeout: cfg.PlacementConfirmTimeout,
	}
}

// Outcome 为单个动作的结果。
type Outcome string

const (
	OutcomePlaced         Outcome = "placed"
	OutcomePlaceFailed    Outcome = "place_failed"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeCancelSkipped  Outcome = "cancel_skipped"
	OutcomeCancelNotFound Outcome = "cancel_not_found"
	OutcomeCancelTimeout  Outcome = "cancel_timeout"
	OutcomeCancelFailed   Outcome = "cancel_failed"
)

// Action 记录一次下单或撤单动作。
type Action struct {
	Level   grid.Level `json:"level"`
	Outcome Outcome    `json:"outcome"`
	OrderID string     `json:"order_id,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Report 为一轮执行的结果摘要。
type Report struct {
	Actions       []Action  `json:"actions"`
	Placed        int       `json:"placed"`
	PlaceFailed   int       `json:"place_failed"`
	Cancelled     int       `json:"cancelled"`
	CancelSkipped int       `json:"cancel_skipped"`
	NotFound      int       `json:"not_found"`
	TimedOut      int       `json:"timed_out"`
	CancelFailed  int       `json:"cancel_failed"`
	LastOrderTime time.Time `json:"last_order_time,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func (r *Report) record(action Action) {
	r.Actions = append(r.Actions, action)
	switch action.Outcome {
	case OutcomePlaced:
		r.Placed++
	case OutcomePlaceFailed:
		r.PlaceFailed++
	case OutcomeCancelled:
		r.Cancelled++
	case OutcomeCancelSkipped:
		r.CancelSkipped++
	case OutcomeCancelNotFound:
		r.NotFound++
	case OutcomeCancelTimeout:
		r.TimedOut++
	case OutcomeCancelFailed:
		r.CancelFailed++
	}
}
