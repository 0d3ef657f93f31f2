package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-trader/internal/config"
	"grid-trader/internal/grid"
)

// api 为客户端实际用到的 ccxt 方法子集，便于测试替换。
type api interface {
	FetchOrderBook(symbol string, options ...ccxt.FetchOrderBookOptions) (ccxt.OrderBook, error)
	FetchOpenOrders(options ...ccxt.FetchOpenOrdersOptions) ([]ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
}

// Client 负责与交易所交互并实现重试机制。
type Client struct {
	cfg         config.ExchangeConfig
	logger      *zap.Logger
	exchange    api
	loadMarkets func() error
	symbol      string

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 按配置中的交易所标识构造 ccxt 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}
	if cfg.Wallet != "" {
		userConfig["walletAddress"] = cfg.Wallet
	}
	if cfg.PrivateKey != "" {
		userConfig["privateKey"] = cfg.PrivateKey
	}

	ex, load, err := newExchange(cfg.Name, userConfig, cfg.UseSandbox)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, ex, load, logger), nil
}

func newClient(cfg config.ExchangeConfig, ex api, load func() error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if load == nil {
		load = func() error { return nil }
	}
	return &Client{
		cfg:         cfg,
		logger:      logger,
		exchange:    ex,
		loadMarkets: load,
		symbol:      cfg.Market,
	}
}

func newExchange(name string, userConfig map[string]interface{}, sandbox bool) (api, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binance":
		ex := ccxt.NewBinance(userConfig)
		if sandbox {
			ex.SetSandboxMode(true)
		}
		return ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, nil
	case "binanceusdm":
		ex := ccxt.NewBinanceusdm(userConfig)
		if sandbox {
			ex.SetSandboxMode(true)
		}
		return ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, nil
	case "hyperliquid":
		ex := ccxt.NewHyperliquid(userConfig)
		if sandbox {
			ex.SetSandboxMode(true)
		}
		return ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, nil
	default:
		return nil, nil, fmt.Errorf("exchange: 不支持的交易所 %q", name)
	}
}

// Symbol 返回交易对符号。
func (c *Client) Symbol() string {
	return c.symbol
}

// FetchOrderBook 获取订单簿快照。
func (c *Client) FetchOrderBook(ctx context.Context, depth int64) (OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 5
	}

	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, "fetch_order_book", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orderBook, err := c.exchange.FetchOrderBook(
			c.symbol,
			ccxt.WithFetchOrderBookLimit(depth),
		)
		if err != nil {
			return err
		}

		raw = orderBook
		return nil
	})
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	return convertOrderBook(c.symbol, raw), nil
}

// OpenOrders 获取当前交易对的全部挂单。
func (c *Client) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orders, err := c.exchange.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(c.symbol))
		if err != nil {
			return err
		}
		raw = orders
		return nil
	})
	if err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, item := range raw {
		order, ok := convertOrder(item)
		if !ok {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// CreateLimitOrder 在指定价位提交限价单。下单不做重试，失败交由下一周期重新规划。
func (c *Client) CreateLimitOrder(ctx context.Context, level grid.Level) (OpenOrder, error) {
	clientID := newClientOrderID()
	params := map[string]interface{}{
		"clientOrderId": clientID,
	}
	if c.cfg.PostOnly {
		params["postOnly"] = true
	}

	var raw ccxt.Order
	err := c.call(ctx, "create_limit_order", 1, func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		order, err := c.exchange.CreateLimitOrder(
			c.symbol,
			string(level.Side),
			c.cfg.OrderAmount,
			level.Price.InexactFloat64(),
			ccxt.WithCreateLimitOrderParams(params),
		)
		if err != nil {
			return err
		}
		raw = order
		return nil
	})
	if err != nil {
		return OpenOrder{}, err
	}

	placed, ok := convertOrder(raw)
	if !ok {
		placed = OpenOrder{Side: level.Side, Price: level.Price, Amount: c.cfg.OrderAmount}
	}
	if placed.ClientOrderID == "" {
		placed.ClientOrderID = clientID
	}
	return placed, nil
}

// CancelOrder 撤销指定订单，订单不存在时返回 ErrOrderNotFound。
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	return c.callWithRetry(ctx, "cancel_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		_, err := c.exchange.CancelOrder(id, ccxt.WithCancelOrderSymbol(c.symbol))
		return err
	})
}

// FetchBalance 获取账户余额。
func (c *Client) FetchBalance(ctx context.Context) (ccxt.Balances, error) {
	var balances ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	return balances, err
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", c.loadMarkets)
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("symbol", c.symbol))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	return c.call(ctx, operation, c.cfg.Retry.MaxAttempts, fn)
}

func (c *Client) call(ctx context.Context, operation string, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if errors.Is(normalizedErr, ErrOrderNotFound) {
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		case ccxt.OrderNotFoundErrType:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, strings.TrimSpace(ccxtErr.Message)), false
		}
	}

	return err, IsRetryable(err)
}

func newClientOrderID() string {
	return "grid" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func convertOrder(o ccxt.Order) (OpenOrder, bool) {
	if o.Price == nil || *o.Price <= 0 || o.Side == nil {
		return OpenOrder{}, false
	}

	var side grid.Side
	switch strings.ToLower(*o.Side) {
	case "buy":
		side = grid.SideBuy
	case "sell":
		side = grid.SideSell
	default:
		return OpenOrder{}, false
	}

	order := OpenOrder{
		ID:     derefString(o.Id),
		Side:   side,
		Price:  decimal.NewFromFloat(*o.Price),
		Amount: derefFloat(o.Amount),
	}
	order.ClientOrderID = derefString(o.ClientOrderId)
	return order, true
}

func convertOrderBook(symbol string, ob ccxt.OrderBook) OrderBookSnapshot {
	bids := make([]OrderBookLevel, 0, len(ob.Bids))
	for _, level := range ob.Bids {
		if len(level) < 2 {
			continue
		}
		bids = append(bids, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	asks := make([]OrderBookLevel, 0, len(ob.Asks))
	for _, level := range ob.Asks {
		if len(level) < 2 {
			continue
		}
		asks = append(asks, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	var ts time.Time
	if ob.Timestamp != nil {
		ts = time.UnixMilli(*ob.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	var nonce int64
	if ob.Nonce != nil {
		nonce = *ob.Nonce
	}

	return OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
		Nonce:     nonce,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
