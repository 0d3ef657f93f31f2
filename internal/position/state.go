package position

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// BalanceClient 提供账户余额。
type BalanceClient interface {
	FetchBalance(ctx context.Context) (ccxt.Balances, error)
}

// QuoteBalance 描述计价币种的可用与总余额。
type QuoteBalance struct {
	Currency  string    `json:"currency"`
	Free      float64   `json:"free"`
	Total     float64   `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// FetchQuoteBalance 按优先级在余额中查找计价币种。
func FetchQuoteBalance(ctx context.Context, client BalanceClient, currencies []string) (QuoteBalance, error) {
	balances, err := client.FetchBalance(ctx)
	if err != nil {
		return QuoteBalance{}, fmt.Errorf("position: 获取账户余额失败: %w", err)
	}
	return extractQuoteBalance(balances, currencies), nil
}

func extractQuoteBalance(balances ccxt.Balances, currencies []string) QuoteBalance {
	result := QuoteBalance{Timestamp: time.Now().UTC()}

	for _, code := range currencies {
		code = strings.ToUpper(strings.TrimSpace(code))
		free, hasFree := balances.Free[code]
		total, hasTotal := balances.Total[code]
		if (!hasFree || free == nil) && (!hasTotal || total == nil) {
			continue
		}
		result.Currency = code
		result.Free = derefFloat(free)
		result.Total = derefFloat(total)
		return result
	}

	// 部分交易所（如 Hyperliquid）只在原始响应中给出保证金摘要。
	if balances.Info != nil {
		if summary, ok := balances.Info["marginSummary"].(map[string]interface{}); ok {
			result.Total = parseNumeric(summary["accountValue"])
			result.Free = parseNumeric(balances.Info["withdrawable"])
			if len(currencies) > 0 {
				result.Currency = strings.ToUpper(currencies[0])
			}
		}
	}
	return result
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}
