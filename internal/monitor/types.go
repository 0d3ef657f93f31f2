package monitor

import (
	"time"

	"grid-trader/internal/config"
	"grid-trader/internal/execution"
	"grid-trader/internal/grid"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventCycle        EventType = "cycle"
	EventNotReady     EventType = "not_ready"
	EventConfigChange EventType = "config_change"
	EventError        EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Outcome 为一轮周期的结果标签。
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeDataUnavailable Outcome = "skipped_data_unavailable"
	OutcomeNotReady        Outcome = "aborted_not_ready"
	OutcomeLeaseHeld       Outcome = "skipped_lease"
	OutcomeFailed          Outcome = "failed"
)

// CycleReport 为一轮网格周期的完整记录。
type CycleReport struct {
	CycleID   string            `json:"cycle_id"`
	Cycle     uint64            `json:"cycle"`
	Outcome   Outcome           `json:"outcome"`
	Grid      config.GridConfig `json:"grid"`
	Window    *grid.Window      `json:"window,omitempty"`
	Plan      *grid.Plan        `json:"plan,omitempty"`
	Execution *execution.Report `json:"execution,omitempty"`
	Error     string            `json:"error,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// NotReadyPayload 记录环境检查失败。
type NotReadyPayload struct {
	CycleID string `json:"cycle_id"`
	Cycle   uint64 `json:"cycle"`
	Message string `json:"message"`
}

// ConfigChangePayload 记录运行期网格参数调整。
type ConfigChangePayload struct {
	Previous config.GridConfig `json:"previous"`
	Current  config.GridConfig `json:"current"`
	Source   string            `json:"source"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
