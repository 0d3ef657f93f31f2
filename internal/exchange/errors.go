package exchange

import (
	"context"
	"errors"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("exchange: 交易所维护中")
	// ErrOrderNotFound 表示撤单时订单已不存在（已成交或已撤销）。
	ErrOrderNotFound = errors.New("exchange: order not found")
)

// IsRetryable 判断错误是否属于可重试的传输层或限频错误。ctx 取消不重试。
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTimeout 判断错误是否属于请求超时。
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		return ccxtErr.Type == ccxt.RequestTimeoutErrType
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		return timeout.Timeout()
	}
	return false
}
