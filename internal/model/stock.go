package model

import (
	"strings"
	"time"
)

// Stock is one listed security tracked for sync.
type Stock struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	TsCode   string `gorm:"size:10;uniqueIndex;not null"`
	Symbol   string `gorm:"size:6;index;not null"`
	Name     string `gorm:"size:50;not null"`
	Market   string `gorm:"size:10"`
	Board    string `gorm:"size:20"`
	IsActive bool   `gorm:"default:true;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Stock) TableName() string { return "stocks" }

// IsSyncable excludes risk-warning and delisting securities from sync plans.
func (s Stock) IsSyncable() bool {
	if !s.IsActive {
		return false
	}
	for _, kw := range []string{"ST", "*ST", "退"} {
		if strings.Contains(s.Name, kw) {
			return false
		}
	}
	return true
}
