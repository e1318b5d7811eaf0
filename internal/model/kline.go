package model

import (
	"time"

	"github.com/yanun0323/decimal"
)

// KlineDaily is one daily OHLCV bar. The (ts_code, trade_date) pair is unique
// so replays of the same window never duplicate rows.
type KlineDaily struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	TsCode    string    `gorm:"size:10;index;not null;uniqueIndex:uix_kline_daily_code_date,priority:1"`
	TradeDate time.Time `gorm:"type:date;index;not null;uniqueIndex:uix_kline_daily_code_date,priority:2"`

	Open   decimal.Decimal `gorm:"type:decimal(10,2)"`
	Close  decimal.Decimal `gorm:"type:decimal(10,2)"`
	High   decimal.Decimal `gorm:"type:decimal(10,2)"`
	Low    decimal.Decimal `gorm:"type:decimal(10,2)"`
	Volume int64           `gorm:"type:bigint"`
	Amount decimal.Decimal `gorm:"type:decimal(20,2)"`

	CreatedAt time.Time
}

func (KlineDaily) TableName() string { return "kline_daily" }
