package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "grid"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultGrid 返回默认网格参数。
func DefaultGrid() GridConfig {
	return GridConfig{
		TotalOrders:       8,
		WindowPercent:     0.12,
		SellRatio:         0.5,
		BuyRatio:          0.5,
		Interval:          30,
		SafeGap:           20,
		MaxDriftBuffer:    2000,
		MinValidPrice:     10000,
		MaxCancelPerCycle: 10,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.market", "BTC/USDT")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.api_password", "")
	v.SetDefault("exchange.wallet_address", "")
	v.SetDefault("exchange.private_key", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.order_amount", 0.001)
	v.SetDefault("exchange.post_only", true)
	v.SetDefault("exchange.order_book_depth", 5)
	v.SetDefault("exchange.quote_currency", []string{"USDT", "USDC", "USD"})
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	grid := DefaultGrid()
	v.SetDefault("grid.total_orders", grid.TotalOrders)
	v.SetDefault("grid.window_percent", grid.WindowPercent)
	v.SetDefault("grid.sell_ratio", grid.SellRatio)
	v.SetDefault("grid.buy_ratio", grid.BuyRatio)
	v.SetDefault("grid.interval", grid.Interval)
	v.SetDefault("grid.safe_gap", grid.SafeGap)
	v.SetDefault("grid.max_drift_buffer", grid.MaxDriftBuffer)
	v.SetDefault("grid.min_valid_price", grid.MinValidPrice)
	v.SetDefault("grid.max_cancel_per_cycle", grid.MaxCancelPerCycle)

	v.SetDefault("execution.order_cooldown", "1s")
	v.SetDefault("execution.cancel_delay", "1500ms")
	v.SetDefault("execution.cancel_confirm_timeout", "15s")
	v.SetDefault("execution.cancel_poll_interval", "300ms")
	v.SetDefault("execution.confirm_placement", false)
	v.SetDefault("execution.placement_confirm_timeout", "5s")
	v.SetDefault("execution.simulation", false)

	v.SetDefault("scheduler.cycle_interval", "10s")
	v.SetDefault("scheduler.min_delay", "1s")

	v.SetDefault("readiness.max_checks", 60)
	v.SetDefault("readiness.check_delay", "5s")
	v.SetDefault("readiness.min_free_balance", 0)

	v.SetDefault("database.path", "data/grid_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 7)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8090)

	v.SetDefault("lease.redis_addr", "")
	v.SetDefault("lease.password", "")
	v.SetDefault("lease.db", 0)
	v.SetDefault("lease.key", "grid-trader:cycle")
	v.SetDefault("lease.ttl", "2m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
