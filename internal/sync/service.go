// Package sync drives market-data synchronization: single-target incremental
// updates, queue-backed batch jobs, and the concurrent high-throughput path.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/batch"
	"main/internal/model"
)

// Store is the persistence surface the sync engine needs.
type Store interface {
	SyncableStocks(ctx context.Context) ([]model.Stock, error)
	UpsertStocks(ctx context.Context, stocks []model.Stock) (int, error)
	LatestKlineDate(ctx context.Context, tsCode string) (time.Time, bool, error)
	LatestKlineDates(ctx context.Context) (map[string]time.Time, error)
	BulkInsertKlines(ctx context.Context, klines []model.KlineDaily) (int, error)
	AppendSyncLog(ctx context.Context, rec model.SyncLog) error
}

// Service owns the sync paths. It implements batch.TargetSyncer so the batch
// manager drives items through the same single-target discipline.
type Service struct {
	store    Store
	provider Provider
	retry    Retrier
}

// NewService wires the sync engine to its store and provider.
func NewService(store Store, provider Provider) *Service {
	return &Service{
		store:    store,
		provider: provider,
		retry:    Retrier{},
	}
}

// ListSummary reports a stock-list sync.
type ListSummary struct {
	Count   int
	Message string
}

// SyncStockList fetches the full listing and upserts it.
func (s *Service) SyncStockList(ctx context.Context) (ListSummary, error) {
	var quotes []Quote
	err := s.retry.Do(ctx, "fetch stock list", func(ctx context.Context) error {
		var opErr error
		quotes, opErr = s.provider.StockList(ctx)
		return opErr
	})
	if err != nil {
		return ListSummary{}, errors.Wrap(err, "sync stock list")
	}

	stocks := make([]model.Stock, 0, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" {
			continue
		}
		code := toTsCode(q.Symbol)
		stocks = append(stocks, model.Stock{
			TsCode:   code,
			Symbol:   q.Symbol,
			Name:     q.Name,
			Market:   marketOf(code),
			Board:    boardOf(q.Symbol),
			IsActive: true,
		})
	}

	n, err := s.store.UpsertStocks(ctx, stocks)
	if err != nil {
		return ListSummary{}, errors.Wrap(err, "sync stock list")
	}
	logs.Infof("stock list synced: %d rows", n)
	return ListSummary{Count: n, Message: fmt.Sprintf("synced %d stocks", n)}, nil
}

// SyncTarget syncs one stock's daily bars: incrementally from the day after
// its latest stored bar, or the full history window when it has no data or
// forceFull is set.
func (s *Service) SyncTarget(ctx context.Context, code string, forceFull bool) (batch.Outcome, error) {
	latest, ok, err := s.store.LatestKlineDate(ctx, code)
	if err != nil {
		return batch.Outcome{}, errors.Wrap(err, "sync target")
	}

	var (
		start time.Time
		mode  string
	)
	now := time.Now()
	switch {
	case ok && !forceFull:
		start = latest.AddDate(0, 0, 1)
		mode = "incremental"
	case forceFull:
		start = now.AddDate(-HistoryYears, 0, 0)
		mode = "full"
	default:
		start = now.AddDate(-HistoryYears, 0, 0)
		mode = "initial"
	}
	if start.After(now) {
		return batch.Outcome{Count: 0, Mode: mode}, nil
	}

	var bars []Bar
	err = s.retry.Do(ctx, "fetch kline "+code, func(ctx context.Context) error {
		var opErr error
		bars, opErr = s.provider.Kline(ctx, symbolOf(code), start, now)
		return opErr
	})
	if err != nil {
		return batch.Outcome{}, errors.Wrap(err, "sync target").With("code", code)
	}
	if len(bars) == 0 {
		return batch.Outcome{Count: 0, Mode: mode}, nil
	}

	klines := make([]model.KlineDaily, 0, len(bars))
	for _, b := range bars {
		klines = append(klines, model.KlineDaily{
			TsCode:    code,
			TradeDate: b.TradeDate,
			Open:      b.Open,
			Close:     b.Close,
			High:      b.High,
			Low:       b.Low,
			Volume:    b.Volume,
			Amount:    b.Amount,
		})
	}
	n, err := s.store.BulkInsertKlines(ctx, klines)
	if err != nil {
		return batch.Outcome{}, errors.Wrap(err, "sync target").With("code", code)
	}
	return batch.Outcome{Count: n, Mode: mode}, nil
}

// Targets loads the syncable stocks annotated with their freshness markers,
// ready for batch planning. Freshness is resolved with one aggregate query,
// not one lookup per stock.
func (s *Service) Targets(ctx context.Context) ([]batch.Item, error) {
	stocks, err := s.store.SyncableStocks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load targets")
	}
	dates, err := s.store.LatestKlineDates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load targets")
	}

	items := make([]batch.Item, 0, len(stocks))
	for _, st := range stocks {
		items = append(items, batch.Item{
			Code:      st.TsCode,
			Name:      st.Name,
			Freshness: dates[st.TsCode],
		})
	}
	return items, nil
}

// PlanThreshold returns the plan-time skip-if-fresh cutoff: the most recent
// completed trading day per the provider, falling back to the last weekday.
func (s *Service) PlanThreshold(ctx context.Context) time.Time {
	d, err := s.provider.LatestTradeDate(ctx)
	if err == nil && !d.IsZero() {
		if today := time.Now(); d.After(today) {
			return today
		}
		return d
	}
	logs.Warnf("latest trade date unavailable, falling back to last weekday: %v", err)

	yesterday := time.Now().AddDate(0, 0, -1)
	switch yesterday.Weekday() {
	case time.Saturday:
		yesterday = yesterday.AddDate(0, 0, -1)
	case time.Sunday:
		yesterday = yesterday.AddDate(0, 0, -2)
	}
	return yesterday
}

func symbolOf(tsCode string) string {
	if i := strings.IndexByte(tsCode, '.'); i >= 0 {
		return tsCode[:i]
	}
	return tsCode
}

func marketOf(tsCode string) string {
	if i := strings.IndexByte(tsCode, '.'); i >= 0 {
		return tsCode[i+1:]
	}
	return ""
}

func toTsCode(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	switch {
	case strings.HasPrefix(symbol, "6"):
		return symbol + ".SH"
	case strings.HasPrefix(symbol, "8"), strings.HasPrefix(symbol, "4"):
		return symbol + ".BJ"
	default:
		return symbol + ".SZ"
	}
}

func boardOf(symbol string) string {
	switch {
	case strings.HasPrefix(symbol, "688"):
		return "STAR"
	case strings.HasPrefix(symbol, "6"):
		return "SH-Main"
	case strings.HasPrefix(symbol, "30"):
		return "ChiNext"
	case strings.HasPrefix(symbol, "0"):
		return "SZ-Main"
	case strings.HasPrefix(symbol, "8"), strings.HasPrefix(symbol, "4"):
		return "BSE"
	default:
		return ""
	}
}
