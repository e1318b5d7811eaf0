// Package eastmoney implements the market-data provider against East Money's
// public quote endpoints.
package eastmoney

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/sync"
)

const (
	_quoteBaseUrl   = "https://push2.eastmoney.com"
	_historyBaseUrl = "https://push2his.eastmoney.com"

	// A-share equities on both exchanges.
	_listMarketFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"
	// Shanghai composite index, used only to probe the calendar.
	_calendarSecID = "1.000001"

	_listPageSize    = 1000
	_requestTimeout  = 15 * time.Second
	_dailyKlineType  = "101"
	_forwardAdjusted = "1"
)

// Client talks to the East Money quote API. It is stateless and safe for
// concurrent use.
type Client struct {
	client      *http.Client
	quoteBase   string
	historyBase string
}

// New creates a client. A nil httpClient uses a default with a request
// timeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: _requestTimeout}
	}
	return &Client{
		client:      httpClient,
		quoteBase:   _quoteBaseUrl,
		historyBase: _historyBaseUrl,
	}
}

type listResponse struct {
	Data struct {
		Total int `json:"total"`
		Diff  []struct {
			Symbol string `json:"f12"`
			Name   string `json:"f14"`
		} `json:"diff"`
	} `json:"data"`
}

// StockList fetches the full A-share listing, page by page.
func (c *Client) StockList(ctx context.Context) ([]sync.Quote, error) {
	var quotes []sync.Quote
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("pn", strconv.Itoa(page))
		query.Set("pz", strconv.Itoa(_listPageSize))
		query.Set("po", "1")
		query.Set("np", "1")
		query.Set("fltt", "2")
		query.Set("fid", "f12")
		query.Set("fs", _listMarketFilter)
		query.Set("fields", "f12,f14")

		var resp listResponse
		if err := c.get(ctx, c.quoteBase+"/api/qt/clist/get", query, &resp); err != nil {
			return nil, errors.Wrap(err, "fetch stock list")
		}
		if len(resp.Data.Diff) == 0 {
			break
		}
		for _, row := range resp.Data.Diff {
			quotes = append(quotes, sync.Quote{Symbol: row.Symbol, Name: row.Name})
		}
		if len(quotes) >= resp.Data.Total {
			break
		}
	}
	return quotes, nil
}

type klineResponse struct {
	Data struct {
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Kline fetches forward-adjusted daily bars for one symbol in [start, end].
func (c *Client) Kline(ctx context.Context, symbol string, start, end time.Time) ([]sync.Bar, error) {
	query := url.Values{}
	query.Set("secid", secID(symbol))
	query.Set("klt", _dailyKlineType)
	query.Set("fqt", _forwardAdjusted)
	query.Set("beg", start.Format("20060102"))
	query.Set("end", end.Format("20060102"))
	query.Set("fields1", "f1,f2,f3,f4,f5,f6")
	query.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")

	var resp klineResponse
	if err := c.get(ctx, c.historyBase+"/api/qt/stock/kline/get", query, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch kline").With("symbol", symbol)
	}

	bars := make([]sync.Bar, 0, len(resp.Data.Klines))
	for _, row := range resp.Data.Klines {
		bar, err := parseKlineRow(row)
		if err != nil {
			return nil, errors.Wrap(err, "parse kline").With("symbol", symbol)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// LatestTradeDate probes the Shanghai composite index for the most recent
// completed trading day.
func (c *Client) LatestTradeDate(ctx context.Context) (time.Time, error) {
	end := time.Now()
	query := url.Values{}
	query.Set("secid", _calendarSecID)
	query.Set("klt", _dailyKlineType)
	query.Set("fqt", "0")
	query.Set("beg", end.AddDate(0, 0, -14).Format("20060102"))
	query.Set("end", end.Format("20060102"))
	query.Set("fields1", "f1,f2,f3,f4,f5,f6")
	query.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")

	var resp klineResponse
	if err := c.get(ctx, c.historyBase+"/api/qt/stock/kline/get", query, &resp); err != nil {
		return time.Time{}, errors.Wrap(err, "fetch trade calendar")
	}
	if len(resp.Data.Klines) == 0 {
		return time.Time{}, errors.New("empty trade calendar")
	}

	last := resp.Data.Klines[len(resp.Data.Klines)-1]
	date, _, found := strings.Cut(last, ",")
	if !found {
		return time.Time{}, errors.Errorf("malformed kline row: %s", last)
	}
	return time.Parse(time.DateOnly, date)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, _requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(body, out)
}

// parseKlineRow decodes one comma-joined bar:
// date,open,close,high,low,volume,amount
func parseKlineRow(row string) (sync.Bar, error) {
	parts := strings.Split(row, ",")
	if len(parts) < 7 {
		return sync.Bar{}, errors.Errorf("malformed kline row: %s", row)
	}
	date, err := time.Parse(time.DateOnly, parts[0])
	if err != nil {
		return sync.Bar{}, err
	}
	volume, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return sync.Bar{}, err
	}
	return sync.Bar{
		TradeDate: date,
		Open:      decimal.Decimal(parts[1]),
		Close:     decimal.Decimal(parts[2]),
		High:      decimal.Decimal(parts[3]),
		Low:       decimal.Decimal(parts[4]),
		Volume:    volume,
		Amount:    decimal.Decimal(parts[6]),
	}, nil
}

// secID maps a bare symbol to East Money's market-prefixed id.
func secID(symbol string) string {
	if strings.HasPrefix(symbol, "6") {
		return "1." + symbol
	}
	return "0." + symbol
}
