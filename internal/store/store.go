// Package store is the gorm-backed persistence layer for stocks, klines and
// sync logs. Bulk writes here are the flush sink behind the batch writer.
package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/model"
)

// Store wraps a gorm connection with the queries the sync engine needs.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the backing tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Stock{}, &model.KlineDaily{}, &model.SyncLog{})
}

// SyncableStocks returns active stocks eligible for sync, with risk-warning
// and delisting names filtered out.
func (s *Store) SyncableStocks(ctx context.Context) ([]model.Stock, error) {
	var stocks []model.Stock
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("ts_code").
		Find(&stocks).Error; err != nil {
		return nil, errors.Wrap(err, "query active stocks")
	}

	out := stocks[:0]
	for _, st := range stocks {
		if st.IsSyncable() {
			out = append(out, st)
		}
	}
	return out, nil
}

// UpsertStocks writes the full stock list, updating rows that already exist
// on ts_code. Returns how many rows were written.
func (s *Store) UpsertStocks(ctx context.Context, stocks []model.Stock) (int, error) {
	if len(stocks) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ts_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol", "name", "market", "board", "is_active", "updated_at"}),
	}).CreateInBatches(stocks, 500).Error
	if err != nil {
		return 0, errors.Wrap(err, "upsert stocks")
	}
	return len(stocks), nil
}

// LatestKlineDate returns the most recent bar date for one stock.
func (s *Store) LatestKlineDate(ctx context.Context, tsCode string) (time.Time, bool, error) {
	var k model.KlineDaily
	err := s.db.WithContext(ctx).
		Where("ts_code = ?", tsCode).
		Order("trade_date DESC").
		Limit(1).
		Take(&k).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "query latest kline date")
	}
	return k.TradeDate, true, nil
}

// LatestKlineDates returns the most recent bar date per stock in one query,
// instead of issuing one lookup per target.
func (s *Store) LatestKlineDates(ctx context.Context) (map[string]time.Time, error) {
	var rows []struct {
		TsCode     string
		LatestDate time.Time
	}
	err := s.db.WithContext(ctx).
		Model(&model.KlineDaily{}).
		Select("ts_code, MAX(trade_date) AS latest_date").
		Group("ts_code").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query latest kline dates")
	}

	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.TsCode] = r.LatestDate
	}
	return out, nil
}

// BulkInsertKlines writes bars in batches, silently skipping rows that
// violate the (ts_code, trade_date) unique constraint.
func (s *Store) BulkInsertKlines(ctx context.Context, klines []model.KlineDaily) (int, error) {
	if len(klines) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ts_code"}, {Name: "trade_date"}},
		DoNothing: true,
	}).CreateInBatches(klines, 500).Error
	if err != nil {
		return 0, errors.Wrap(err, "bulk insert klines")
	}
	return len(klines), nil
}

// AppendSyncLog records one sync run outcome.
func (s *Store) AppendSyncLog(ctx context.Context, rec model.SyncLog) error {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "append sync log")
	}
	return nil
}

// LastTradeDates returns the n most recent distinct trade dates, newest first.
func (s *Store) LastTradeDates(ctx context.Context, n int) ([]time.Time, error) {
	var dates []time.Time
	err := s.db.WithContext(ctx).
		Model(&model.KlineDaily{}).
		Distinct("trade_date").
		Order("trade_date DESC").
		Limit(n).
		Pluck("trade_date", &dates).Error
	if err != nil {
		return nil, errors.Wrap(err, "query trade dates")
	}
	return dates, nil
}

// PeriodEndDates returns the last trade date of the n most recent periods,
// newest first. period is a postgres date_trunc field ("week" or "month").
func (s *Store) PeriodEndDates(ctx context.Context, period string, n int) ([]time.Time, error) {
	if period != "week" && period != "month" {
		return nil, errors.Errorf("unsupported period: %s", period)
	}
	var dates []time.Time
	err := s.db.WithContext(ctx).
		Model(&model.KlineDaily{}).
		Select("MAX(trade_date) AS end_date").
		Group("date_trunc(?, trade_date)").
		Order("end_date DESC").
		Limit(n).
		Pluck("end_date", &dates).Error
	if err != nil {
		return nil, errors.Wrap(err, "query period end dates")
	}
	return dates, nil
}

// KlinesOn loads every bar on the given trade dates.
func (s *Store) KlinesOn(ctx context.Context, dates []time.Time) ([]model.KlineDaily, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	var klines []model.KlineDaily
	err := s.db.WithContext(ctx).
		Where("trade_date IN ?", dates).
		Find(&klines).Error
	if err != nil {
		return nil, errors.Wrap(err, "query klines by date")
	}
	return klines, nil
}
