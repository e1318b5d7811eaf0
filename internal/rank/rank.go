// Package rank computes period-over-period top performers from stored daily
// bars.
package rank

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/model"
)

// ErrInsufficientData means fewer than two completed periods exist, so there
// is nothing to compare against.
var ErrInsufficientData = errors.New("not enough period data to rank")

// Period selects the comparison granularity.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Source is the query surface the ranker reads from.
type Source interface {
	PeriodEndDates(ctx context.Context, period string, n int) ([]time.Time, error)
	KlinesOn(ctx context.Context, dates []time.Time) ([]model.KlineDaily, error)
	SyncableStocks(ctx context.Context) ([]model.Stock, error)
}

// Performer is one ranked stock with its period-over-period change.
type Performer struct {
	TsCode    string  `json:"ts_code"`
	Name      string  `json:"name"`
	Close     float64 `json:"close"`
	PrevClose float64 `json:"prev_close"`
	ChangePct float64 `json:"change_pct"`
}

// Report is a ranking over one completed period.
type Report struct {
	Period     Period      `json:"period"`
	PeriodEnd  time.Time   `json:"period_end"`
	PrevEnd    time.Time   `json:"prev_end"`
	Performers []Performer `json:"performers"`
}

// Ranker joins the bars of the two most recent period ends and ranks stocks
// by close-to-close change.
type Ranker struct {
	src Source
}

// New creates a ranker over a query source.
func New(src Source) *Ranker {
	return &Ranker{src: src}
}

// barKey identifies one bar by stock and day. Bars are joined on this
// composite key, so two stocks sharing a trade date never collide.
type barKey struct {
	code string
	day  string
}

func keyOf(code string, date time.Time) barKey {
	return barKey{code: code, day: date.Format(time.DateOnly)}
}

// TopPerformers ranks syncable stocks by percent change between the two most
// recent period-end closes, best first. topN <= 0 returns the full ranking.
func (r *Ranker) TopPerformers(ctx context.Context, period Period, topN int) (Report, error) {
	dates, err := r.src.PeriodEndDates(ctx, string(period), 2)
	if err != nil {
		return Report{}, errors.Wrap(err, "rank top performers")
	}
	if len(dates) < 2 {
		return Report{}, ErrInsufficientData
	}
	cur, prev := dates[0], dates[1]

	klines, err := r.src.KlinesOn(ctx, []time.Time{cur, prev})
	if err != nil {
		return Report{}, errors.Wrap(err, "rank top performers")
	}
	closes := make(map[barKey]float64, len(klines))
	for _, k := range klines {
		if v, err := strconv.ParseFloat(k.Close.String(), 64); err == nil {
			closes[keyOf(k.TsCode, k.TradeDate)] = v
		}
	}

	stocks, err := r.src.SyncableStocks(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "rank top performers")
	}

	performers := make([]Performer, 0, len(stocks))
	for _, st := range stocks {
		curClose, ok := closes[keyOf(st.TsCode, cur)]
		if !ok {
			continue
		}
		prevClose, ok := closes[keyOf(st.TsCode, prev)]
		if !ok || prevClose <= 0 {
			continue
		}
		performers = append(performers, Performer{
			TsCode:    st.TsCode,
			Name:      st.Name,
			Close:     curClose,
			PrevClose: prevClose,
			ChangePct: round2((curClose - prevClose) / prevClose * 100),
		})
	}

	sort.SliceStable(performers, func(i, j int) bool {
		if performers[i].ChangePct != performers[j].ChangePct {
			return performers[i].ChangePct > performers[j].ChangePct
		}
		return performers[i].TsCode < performers[j].TsCode
	})
	if topN > 0 && topN < len(performers) {
		performers = performers[:topN]
	}

	return Report{
		Period:     period,
		PeriodEnd:  cur,
		PrevEnd:    prev,
		Performers: performers,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
