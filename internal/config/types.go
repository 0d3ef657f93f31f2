package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
)

// ErrInvariant 表示配置违反了引擎运行所需的不变量，启动时必须拒绝运行。
var ErrInvariant = errors.New("config: 配置不变量校验失败")

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Grid      GridConfig      `mapstructure:"grid"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Lease     LeaseConfig     `mapstructure:"lease"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name           string      `mapstructure:"name"`
	Market         string      `mapstructure:"market"`
	APIKey         string      `mapstructure:"api_key"`
	APISecret      string      `mapstructure:"api_secret"`
	APIPass        string      `mapstructure:"api_password"`
	Wallet         string      `mapstructure:"wallet_address"`
	PrivateKey     string      `mapstructure:"private_key"`
	UseSandbox     bool        `mapstructure:"use_sandbox"`
	OrderAmount    float64     `mapstructure:"order_amount"`
	PostOnly       bool        `mapstructure:"post_only"`
	OrderBookDepth int         `mapstructure:"order_book_depth"`
	QuoteCurrency  []string    `mapstructure:"quote_currency"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// GridConfig 为网格策略参数，运行期只读，只能在周期之间整体替换。
type GridConfig struct {
	TotalOrders       int     `mapstructure:"total_orders" json:"total_orders"`
	WindowPercent     float64 `mapstructure:"window_percent" json:"window_percent"`
	SellRatio         float64 `mapstructure:"sell_ratio" json:"sell_ratio"`
	BuyRatio          float64 `mapstructure:"buy_ratio" json:"buy_ratio"`
	Interval          float64 `mapstructure:"interval" json:"interval"`
	SafeGap           float64 `mapstructure:"safe_gap" json:"safe_gap"`
	MaxDriftBuffer    float64 `mapstructure:"max_drift_buffer" json:"max_drift_buffer"`
	MinValidPrice     float64 `mapstructure:"min_valid_price" json:"min_valid_price"`
	MaxCancelPerCycle int     `mapstructure:"max_cancel_per_cycle" json:"max_cancel_per_cycle"`
}

// ExecutionConfig 控制下单与撤单节奏。
type ExecutionConfig struct {
	OrderCooldown           time.Duration `mapstructure:"order_cooldown"`
	CancelDelay             time.Duration `mapstructure:"cancel_delay"`
	CancelConfirmTimeout    time.Duration `mapstructure:"cancel_confirm_timeout"`
	CancelPollInterval      time.Duration `mapstructure:"cancel_poll_interval"`
	ConfirmPlacement        bool          `mapstructure:"confirm_placement"`
	PlacementConfirmTimeout time.Duration `mapstructure:"placement_confirm_timeout"`
	Simulation              bool          `mapstructure:"simulation"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	MinDelay      time.Duration `mapstructure:"min_delay"`
}

// ReadinessConfig 控制每轮开始前的环境就绪检查。
type ReadinessConfig struct {
	MaxChecks      int           `mapstructure:"max_checks"`
	CheckDelay     time.Duration `mapstructure:"check_delay"`
	MinFreeBalance float64       `mapstructure:"min_free_balance"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string        `mapstructure:"level"`
	Encoding         string        `mapstructure:"encoding"`
	Development      bool          `mapstructure:"development"`
	OutputPaths      []string      `mapstructure:"output_paths"`
	ErrorOutputPaths []string      `mapstructure:"error_output_paths"`
	File             LogFileConfig `mapstructure:"file"`
}

// LogFileConfig 控制滚动日志文件，Path 为空时不落盘。
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitorConfig 控制状态与调参接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LeaseConfig 控制基于 Redis 的单实例租约，RedisAddr 为空时关闭。
type LeaseConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Key       string        `mapstructure:"key"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Enabled 报告是否配置了 Redis 租约。
func (l LeaseConfig) Enabled() bool {
	return l.RedisAddr != ""
}

// Validate 校验网格参数不变量。
func (g GridConfig) Validate() error {
	var err error

	if g.TotalOrders <= 0 {
		err = multierr.Append(err, errors.New("grid.total_orders 必须大于0"))
	}
	if g.WindowPercent <= 0 || g.WindowPercent >= 1 {
		err = multierr.Append(err, errors.New("grid.window_percent 必须位于(0,1)"))
	}
	if g.SellRatio < 0 || g.SellRatio > 1 || g.BuyRatio < 0 || g.BuyRatio > 1 {
		err = multierr.Append(err, errors.New("grid.sell_ratio 与 grid.buy_ratio 必须位于[0,1]"))
	}
	if math.Abs(g.SellRatio+g.BuyRatio-1) > 1e-9 {
		err = multierr.Append(err, fmt.Errorf("grid.sell_ratio + grid.buy_ratio 必须等于1，当前为 %.6f", g.SellRatio+g.BuyRatio))
	}
	if g.Interval <= 0 {
		err = multierr.Append(err, errors.New("grid.interval 必须大于0"))
	}
	if g.SafeGap < 0 {
		err = multierr.Append(err, errors.New("grid.safe_gap 不能为负"))
	}
	if g.MaxDriftBuffer < 0 {
		err = multierr.Append(err, errors.New("grid.max_drift_buffer 不能为负"))
	}
	if g.MinValidPrice < 0 {
		err = multierr.Append(err, errors.New("grid.min_valid_price 不能为负"))
	}
	if g.MaxCancelPerCycle <= 0 {
		err = multierr.Append(err, errors.New("grid.max_cancel_per_cycle 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return nil
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.OrderAmount <= 0 {
		err = multierr.Append(err, errors.New("exchange.order_amount 必须大于0"))
	}
	if c.Exchange.OrderBookDepth <= 0 {
		err = multierr.Append(err, errors.New("exchange.order_book_depth 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if gridErr := c.Grid.Validate(); gridErr != nil {
		err = multierr.Append(err, gridErr)
	}
	if c.Execution.OrderCooldown < 0 || c.Execution.CancelDelay < 0 {
		err = multierr.Append(err, errors.New("execution 冷却时间不能为负"))
	}
	if c.Execution.CancelConfirmTimeout <= 0 || c.Execution.CancelPollInterval <= 0 {
		err = multierr.Append(err, errors.New("execution.cancel_confirm_timeout 与 cancel_poll_interval 必须大于0"))
	}
	if c.Execution.ConfirmPlacement && c.Execution.PlacementConfirmTimeout <= 0 {
		err = multierr.Append(err, errors.New("execution.placement_confirm_timeout 必须大于0"))
	}
	if c.Scheduler.CycleInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.cycle_interval 必须大于0"))
	}
	if c.Scheduler.MinDelay <= 0 {
		err = multierr.Append(err, errors.New("scheduler.min_delay 必须大于0"))
	}
	if c.Readiness.MaxChecks <= 0 {
		err = multierr.Append(err, errors.New("readiness.max_checks 必须大于0"))
	}
	if c.Readiness.CheckDelay < 0 {
		err = multierr.Append(err, errors.New("readiness.check_delay 不能为负"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}
	if c.Lease.Enabled() && c.Lease.TTL <= 0 {
		err = multierr.Append(err, errors.New("lease.ttl 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w: %w", ErrInvariant, err)
	}

	return nil
}
