//go:build integration
// +build integration

package exchange

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"grid-trader/internal/config"
)

func TestClientIntegration_FetchSnapshot(t *testing.T) {
	configPath := os.Getenv("GRID_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Exchange.APIKey == "" {
		t.Skip("缺少交易所密钥，跳过测试")
	}

	client, err := NewClient(cfg.Exchange, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := NewMarketDataService(client, client, cfg.Exchange.OrderBookDepth, zap.NewNop())
	snap, err := svc.Fetch(ctx)
	if err != nil {
		t.Fatalf("获取快照失败: %v", err)
	}
	if !snap.Ask().GreaterThanOrEqual(snap.Bid()) {
		t.Fatalf("盘口价格异常 ask=%s bid=%s", snap.Ask(), snap.Bid())
	}
	t.Logf("mid=%s sells=%d buys=%d", snap.MidPrice(), snap.Sells().Len(), snap.Buys().Len())
}
