package exchange

import (
	"context"
	"errors"
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trader/internal/grid"
)

func TestMarketDataService_FetchBuildsSnapshot(t *testing.T) {
	api := &fakeAPI{
		book: ccxt.OrderBook{
			Asks: [][]float64{{80100, 1}, {80110, 2}},
			Bids: [][]float64{{80000, 1}, {79990, 3}},
		},
		open: []ccxt.Order{
			rawOrder("1", "sell", 80160),
			rawOrder("2", "sell", 80130),
			rawOrder("3", "buy", 79980),
		},
	}
	client := newTestClient(api)
	svc := NewMarketDataService(client, client, 5, nil)

	snap, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "80100", snap.Ask().String())
	assert.Equal(t, "80000", snap.Bid().String())
	assert.Equal(t, "80050", snap.MidPrice().String())
	assert.Equal(t, 2, snap.Sells().Len())
	assert.Equal(t, 1, snap.Buys().Len())
}

func TestMarketDataService_EmptyBookIsDataUnavailable(t *testing.T) {
	api := &fakeAPI{book: ccxt.OrderBook{Bids: [][]float64{{80000, 1}}}}
	client := newTestClient(api)
	svc := NewMarketDataService(client, client, 5, nil)

	_, err := svc.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, grid.ErrDataUnavailable))
}

func TestMarketDataService_OrderFetchFailureIsDataUnavailable(t *testing.T) {
	api := &fakeAPI{
		book: ccxt.OrderBook{
			Asks: [][]float64{{80100, 1}},
			Bids: [][]float64{{80000, 1}},
		},
		openErr: errors.New("auth failed"),
	}
	client := newTestClient(api)
	svc := NewMarketDataService(client, client, 5, nil)

	_, err := svc.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, grid.ErrDataUnavailable))
}

func TestMarketDataService_UsesPaperOrders(t *testing.T) {
	api := &fakeAPI{
		book: ccxt.OrderBook{
			Asks: [][]float64{{80100, 1}},
			Bids: [][]float64{{80000, 1}},
		},
		open: []ccxt.Order{rawOrder("x", "sell", 99999)},
	}
	client := newTestClient(api)
	paper := NewPaperBook(0.001, nil, nil)
	_, err := paper.Place(context.Background(), grid.Level{Side: grid.SideBuy, Price: decimal.RequireFromString("79980")})
	require.NoError(t, err)

	svc := NewMarketDataService(client, paper, 5, nil)
	snap, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Sells().Len())
	assert.True(t, snap.Buys().Contains(decimal.RequireFromString("79980")))
}

func TestMarketDataService_MidPrice(t *testing.T) {
	api := &fakeAPI{book: ccxt.OrderBook{
		Asks: [][]float64{{80100.5, 1}},
		Bids: [][]float64{{80000, 1}},
	}}
	client := newTestClient(api)
	svc := NewMarketDataService(client, client, 5, nil)

	mid, err := svc.MidPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "80050.25", mid.String())
}
