package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"main/internal/batch"
	"main/internal/limiter"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/task"
	"main/internal/writer"
)

// HighPerfSummary reports a concurrent sync run.
type HighPerfSummary struct {
	Mode         string    `json:"mode"`
	Targets      int       `json:"targets"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Rows         int       `json:"rows"`
	FailedSample []string  `json:"failed_sample,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Elapsed      float64   `json:"elapsed_seconds"`
}

// HighPerformanceSync fans targets out across the mode's worker budget, with
// a dual limiter bounding both in-flight fetches and request rate. Fetched
// bars funnel into a shared buffered writer and land in bulk inserts instead
// of one write per target.
//
// ctrl and onProgress may be nil. limit > 0 caps the number of targets.
func (s *Service) HighPerformanceSync(ctx context.Context, mode enum.SyncMode, ctrl *task.Control, onProgress func(pct float64, msg string), limit int) (HighPerfSummary, error) {
	cfg := ConfigFor(mode)
	started := time.Now()

	targets, err := s.Targets(ctx)
	if err != nil {
		return HighPerfSummary{}, err
	}
	batch.SortStalestFirst(targets)
	if limit > 0 && limit < len(targets) {
		targets = targets[:limit]
	}
	if len(targets) == 0 {
		return HighPerfSummary{Mode: mode.String(), StartedAt: started}, nil
	}

	logs.Infof("high performance sync: mode=%s targets=%d concurrency=%d rate=%.1f/s",
		mode, len(targets), cfg.Concurrency, cfg.ConcurrentRate)

	var (
		dual = limiter.NewDual(cfg.Concurrency, cfg.ConcurrentRate)
		buf  = writer.NewBatch[model.KlineDaily](writer.Config{MaxItems: 500})

		done      atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		rows      atomic.Int64

		sampleMu sync.Mutex
		samples  []string
	)

	flush := func(ctx context.Context, klines []model.KlineDaily) {
		if len(klines) == 0 {
			return
		}
		n, err := s.store.BulkInsertKlines(ctx, klines)
		if err != nil {
			logs.Errorf("bulk insert %d klines: %v", len(klines), err)
			return
		}
		rows.Add(int64(n))
	}

	recordFailure := func(code string, err error) {
		failed.Add(1)
		sampleMu.Lock()
		if len(samples) < FailureSampleSize {
			samples = append(samples, fmt.Sprintf("%s: %v", code, err))
		}
		sampleMu.Unlock()
	}

	step := func(name string) {
		n := done.Add(1)
		if onProgress != nil {
			onProgress(float64(n)/float64(len(targets))*100,
				fmt.Sprintf("%s (%d/%d)", name, n, len(targets)))
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		grp.Go(func() error {
			if ctrl != nil && ctrl.Cancelled() {
				step(target.Name)
				return nil
			}
			if ctrl != nil {
				if err := ctrl.WaitIfPaused(gctx); err != nil {
					return err
				}
			}
			if err := dual.Acquire(gctx); err != nil {
				return err
			}
			defer dual.Release()

			bars, err := s.fetchWindow(gctx, target.Code, target.Freshness, cfg)
			if err != nil {
				recordFailure(target.Code, err)
				step(target.Name)
				return nil
			}
			for _, b := range bars {
				if buf.Add(model.KlineDaily{
					TsCode:    target.Code,
					TradeDate: b.TradeDate,
					Open:      b.Open,
					Close:     b.Close,
					High:      b.High,
					Low:       b.Low,
					Volume:    b.Volume,
					Amount:    b.Amount,
				}) {
					flush(gctx, buf.Drain())
				}
			}
			succeeded.Add(1)
			step(target.Name)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		flush(ctx, buf.Drain())
		return HighPerfSummary{}, errors.Wrap(err, "high performance sync")
	}
	flush(ctx, buf.Drain())

	summary := HighPerfSummary{
		Mode:         mode.String(),
		Targets:      len(targets),
		Succeeded:    int(succeeded.Load()),
		Failed:       int(failed.Load()),
		Rows:         int(rows.Load()),
		FailedSample: samples,
		StartedAt:    started,
		Elapsed:      time.Since(started).Seconds(),
	}
	s.logSync(ctx, "kline_daily", summary.Succeeded, summary.Failed,
		fmt.Sprintf("high performance sync (%s): %d ok, %d failed, %d rows in %.1fs",
			summary.Mode, summary.Succeeded, summary.Failed, summary.Rows, summary.Elapsed))
	logs.Infof("high performance sync done: %d ok, %d failed, %d rows, %.1fs",
		summary.Succeeded, summary.Failed, summary.Rows, summary.Elapsed)
	return summary, nil
}

// fetchWindow pulls one target's bars for the mode's window: the configured
// trailing days, the gap since its latest stored bar, or full history when
// the mode forces it or the target has none.
func (s *Service) fetchWindow(ctx context.Context, code string, freshness time.Time, cfg ModeConfig) ([]Bar, error) {
	now := time.Now()
	var start time.Time
	switch {
	case cfg.ForceFull || freshness.IsZero():
		start = now.AddDate(-HistoryYears, 0, 0)
	case cfg.FetchWindowDays > 0:
		start = now.AddDate(0, 0, -cfg.FetchWindowDays)
		if next := freshness.AddDate(0, 0, 1); next.After(start) {
			start = next
		}
	default:
		start = freshness.AddDate(0, 0, 1)
	}
	if start.After(now) {
		return nil, nil
	}

	var bars []Bar
	err := s.retry.Do(ctx, "fetch kline "+code, func(ctx context.Context) error {
		var opErr error
		bars, opErr = s.provider.Kline(ctx, symbolOf(code), start, now)
		return opErr
	})
	return bars, err
}
