package sync

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"
)

// Quote is one listing row from the provider's stock list endpoint.
type Quote struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Bar is one OHLCV row from the provider's kline endpoint. The engine never
// interprets values beyond copying them to storage.
type Bar struct {
	TradeDate time.Time       `json:"trade_date"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    int64           `json:"volume"`
	Amount    decimal.Decimal `json:"amount"`
}

// Provider is the caller-supplied market-data source. Implementations own
// their wire formats; the engine only paces and stores what they return.
type Provider interface {
	// StockList fetches the full listing.
	StockList(ctx context.Context) ([]Quote, error)
	// Kline fetches daily bars for one symbol in [start, end].
	Kline(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
	// LatestTradeDate reports the most recent completed trading day, used
	// as the plan-time freshness threshold.
	LatestTradeDate(ctx context.Context) (time.Time, error)
}
